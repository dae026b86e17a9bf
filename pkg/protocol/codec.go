package protocol

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

func Encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

func Decode(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// WriteMsg writes one msgpack value to w. msgpack values are self
// delimiting, so several can share a stream without extra framing.
func WriteMsg(w io.Writer, v any) error {
	if err := msgpack.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("write %T: %w", v, err)
	}
	return nil
}

// ReadMsg reads exactly one msgpack value from r.
func ReadMsg(r io.Reader, v any) error {
	if err := msgpack.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("read %T: %w", v, err)
	}
	return nil
}

// Clone deep copies v into out by round-tripping through the wire encoding.
func Clone(v, out any) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}
	return Decode(b, out)
}
