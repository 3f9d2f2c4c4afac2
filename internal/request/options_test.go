package request

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionAccessors(t *testing.T) {
	d := &Description{Options: map[string]interface{}{
		"timeout":      float64(1500),
		"content_type": "application/json",
		"cache":        false,
		"xhr": map[string]interface{}{
			"timeout":          "2s",
			"with_credentials": true,
		},
		"max_body_bytes": 4096,
	}}

	dur, ok := d.OptionDuration(OptTimeout)
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, dur)

	dur, ok = d.OptionDuration("xhr", "timeout")
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, dur)

	ct, ok := d.OptionString(OptContentType)
	require.True(t, ok)
	assert.Equal(t, "application/json", ct)

	b, ok := d.OptionBool("xhr", "with_credentials")
	require.True(t, ok)
	assert.True(t, b)

	n, ok := d.OptionInt(OptMaxBodyBytes)
	require.True(t, ok)
	assert.Equal(t, int64(4096), n)
}

func TestOptionAccessorsMissingOrMistyped(t *testing.T) {
	d := &Description{Options: map[string]interface{}{"timeout": true, "xhr": "flat"}}

	_, ok := d.OptionDuration(OptTimeout)
	assert.False(t, ok)
	_, ok = d.OptionString("xhr", "timeout")
	assert.False(t, ok)
	_, ok = d.OptionBool("missing")
	assert.False(t, ok)

	var empty Description
	_, ok = empty.OptionInt(OptMaxBodyBytes)
	assert.False(t, ok)
}

func TestCloneLeavesOriginalUntouched(t *testing.T) {
	orig := &Description{URL: "http://example.test", ErrorPrefix: "Save failed"}
	c := orig.Clone()
	c.OnFailure = func(*Failure) {}

	assert.Nil(t, orig.OnFailure)
	assert.Equal(t, orig.URL, c.URL)
	assert.Nil(t, (*Description)(nil).Clone())
}

func TestFailureUnwraps(t *testing.T) {
	sentinel := errors.New("boom")
	f := &Failure{Status: "502 Bad Gateway", Err: sentinel}
	assert.ErrorIs(t, f, sentinel)
	assert.Equal(t, "boom", f.Error())
	assert.Equal(t, "502 Bad Gateway", (&Failure{Status: "502 Bad Gateway"}).Error())
}
