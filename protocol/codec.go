package protocol

import (
	"strconv"
	"strings"

	"github.com/flashbots/maskagg/masking"
)

const (
	countSeparator  = '$'
	valueTerminator = '*'
)

// EncodeVector encodes v as "<n>$<v0>*<v1>*...*<v(n-1)>*".
// The empty vector encodes as "0$".
func EncodeVector(v masking.Vector) string {
	buf := make([]byte, 0, 4+len(v)*4)
	buf = strconv.AppendInt(buf, int64(len(v)), 10)
	buf = append(buf, countSeparator)
	for _, x := range v {
		buf = strconv.AppendInt(buf, x, 10)
		buf = append(buf, valueTerminator)
	}
	return string(buf)
}

// DecodeVector parses text produced by EncodeVector.
//
//	payload = count "$" { int "*" }
//
// Returns a *FormatError if the separator is missing, the count is not a
// non-negative integer, a value is not an integer, bytes follow the last
// terminator, or the number of values differs from the declared count.
func DecodeVector(text string) (masking.Vector, error) {
	head, body, found := strings.Cut(text, string(countSeparator))
	if !found {
		return nil, &FormatError{Payload: text, Reason: "missing count separator"}
	}

	count, err := strconv.ParseUint(head, 10, 31)
	if err != nil {
		return nil, &FormatError{Payload: text, Reason: "invalid count " + strconv.Quote(head)}
	}

	if count > uint64(len(body)/2) {
		// Every value takes at least two bytes, a digit and its terminator.
		return nil, &FormatError{Payload: text, Reason: "declared count exceeds payload"}
	}

	v := make(masking.Vector, 0, count)
	for len(body) > 0 {
		token, rest, found := strings.Cut(body, string(valueTerminator))
		if !found {
			return nil, &FormatError{Payload: text, Reason: "trailing bytes after last value"}
		}
		x, err := strconv.ParseInt(token, 10, 64)
		if err != nil || token[0] == '+' {
			return nil, &FormatError{Payload: text, Reason: "invalid value " + strconv.Quote(token)}
		}
		v = append(v, x)
		body = rest
	}

	if uint64(len(v)) != count {
		return nil, &FormatError{Payload: text, Reason: "declared count " + head + " but got " + strconv.Itoa(len(v)) + " values"}
	}

	return v, nil
}

// DecodeScalar decodes a one-element vector.
func DecodeScalar(text string) (int64, error) {
	v, err := DecodeVector(text)
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, &FormatError{Payload: text, Reason: "expected a single value"}
	}
	return v[0], nil
}
