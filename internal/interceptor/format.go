package interceptor

import (
	"github.com/tidwall/gjson"
)

const (
	separator           = ". "
	unrecognizedMessage = "Unrecognized error from server."
)

type bodyKind int

const (
	// bodyUnparsed: not structured data (or JSON null); only the prefix is kept.
	bodyUnparsed bodyKind = iota
	// bodyUnrecognized: structured, but without a "message" member.
	bodyUnrecognized
	bodyMessage
)

// errorBody is the outcome of decoding a failure body against the
// {"message": ...} schema servers answer with.
type errorBody struct {
	kind    bodyKind
	message string
}

func decodeErrorBody(body []byte) errorBody {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return errorBody{kind: bodyUnparsed}
	}
	root := gjson.ParseBytes(body)
	if root.Type == gjson.Null {
		return errorBody{kind: bodyUnparsed}
	}
	if !root.IsObject() {
		return errorBody{kind: bodyUnrecognized}
	}
	msg, ok := lastMember(root, "message")
	if !ok {
		return errorBody{kind: bodyUnrecognized}
	}
	return errorBody{kind: bodyMessage, message: messageText(msg)}
}

// lastMember returns the value of the last occurrence of key in obj. A
// repeated key resolves to its final value, as JSON.parse does.
func lastMember(obj gjson.Result, key string) (gjson.Result, bool) {
	var (
		found gjson.Result
		ok    bool
	)
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			found, ok = v, true
		}
		return true
	})
	return found, ok
}

// messageText renders non-string members the way string concatenation
// would: null as "null", numbers and booleans as written, objects and
// arrays as their compact JSON text.
func messageText(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.String()
	case gjson.Null:
		return "null"
	default:
		return v.Raw
	}
}

// FormatFailure builds the error event text for a failed call.
func FormatFailure(prefix string, body []byte) string {
	return format(prefix, decodeErrorBody(body))
}

func format(prefix string, eb errorBody) string {
	msg := prefix + separator
	switch eb.kind {
	case bodyMessage:
		msg += eb.message + "."
	case bodyUnrecognized:
		msg += unrecognizedMessage
	}
	return msg
}
