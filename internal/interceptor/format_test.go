package interceptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message member", `{"message":"disk full"}`, "Save failed. disk full."},
		{"message with other members", `{"code":507,"message":"disk full"}`, "Save failed. disk full."},
		{"empty message", `{"message":""}`, "Save failed. ."},
		{"repeated message keeps last", `{"message":"first","message":"last"}`, "Save failed. last."},
		{"escaped key", `{"mess\u0061ge":"disk full"}`, "Save failed. disk full."},
		{"numeric message", `{"message":42}`, "Save failed. 42."},
		{"null message", `{"message":null}`, "Save failed. null."},
		{"object without message", `{"error":"disk full"}`, "Save failed. Unrecognized error from server."},
		{"nested message only", `{"error":{"message":"x"}}`, "Save failed. Unrecognized error from server."},
		{"array", `[{"message":"x"}]`, "Save failed. Unrecognized error from server."},
		{"bare string", `"disk full"`, "Save failed. Unrecognized error from server."},
		{"number", `500`, "Save failed. Unrecognized error from server."},
		{"html", `<html>500</html>`, "Save failed. "},
		{"truncated json", `{"message":"disk`, "Save failed. "},
		{"empty body", ``, "Save failed. "},
		{"json null", `null`, "Save failed. "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFailure("Save failed", []byte(tt.body)))
		})
	}
}

func TestDecodeErrorBodyKinds(t *testing.T) {
	assert.Equal(t, bodyMessage, decodeErrorBody([]byte(`{"message":"m"}`)).kind)
	assert.Equal(t, bodyUnrecognized, decodeErrorBody([]byte(`{}`)).kind)
	assert.Equal(t, bodyUnparsed, decodeErrorBody([]byte(`not json`)).kind)
}

func TestFormatFailureEmptyPrefix(t *testing.T) {
	assert.Equal(t, ". disk full.", FormatFailure("", []byte(`{"message":"disk full"}`)))
}
