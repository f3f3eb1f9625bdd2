package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Output formats accepted by --format.
const (
	formatJSON    = "json"
	formatMsgpack = "msgpack"
)

var errUnknownFormat = errors.New("unknown output format")

// encoder writes one record per call.
type encoder interface {
	Encode(v any) error
}

// newEncoder returns an encoder writing format to w. JSON output is
// newline-delimited; msgpack values are written back to back.
func newEncoder(format string, w io.Writer) (encoder, error) {
	switch format {
	case formatJSON:
		return json.NewEncoder(w), nil
	case formatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		return enc, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}
