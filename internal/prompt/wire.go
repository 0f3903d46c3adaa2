package prompt

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// decodeString reads one length-delimited message whose field 1 is a
// string from the start of buf.
func decodeString(buf []byte) (string, error) {
	var v wrapperspb.StringValue
	if err := protodelim.UnmarshalFrom(bytes.NewReader(buf), &v); err != nil {
		return "", fmt.Errorf("decode message: %w", err)
	}
	return v.GetValue(), nil
}

// encodeString is the inverse of decodeString.
func encodeString(s string) ([]byte, error) {
	var out bytes.Buffer
	if _, err := protodelim.MarshalTo(&out, wrapperspb.String(s)); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return out.Bytes(), nil
}
