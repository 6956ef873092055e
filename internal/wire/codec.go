package wire

import (
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/dreamware/varys/internal/varyserr"
)

// MaxPayloadSize bounds a single control-plane frame's payload. Control
// messages are small, bounded records (registrations, rate tables, flow
// descriptors) — this is not the data-plane bulk transfer limit, see
// internal/wire/dataplane.go.
const MaxPayloadSize = 16 << 20 // 16 MiB

const frameHeaderSize = 2 + 4 // tag (uint16) + length (uint32)

// WriteFrame writes a length-prefixed {tag, payload} record to w.
func WriteFrame(w io.Writer, tag Tag, payload []byte) error {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint16(header[0:2], uint16(tag))
	binary.BigEndian.PutUint32(header[2:6], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return varyserr.WrapConnectivity(err, "write frame header")
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return varyserr.WrapConnectivity(err, "write frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed {tag, payload} record from r.
func ReadFrame(r io.Reader) (Tag, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, varyserr.WrapConnectivity(err, "read frame header")
	}

	tag := Tag(binary.BigEndian.Uint16(header[0:2]))
	length := binary.BigEndian.Uint32(header[2:6])
	if length > MaxPayloadSize {
		return 0, nil, varyserr.NewProtocol("frame payload %d exceeds max %d", length, MaxPayloadSize)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, varyserr.WrapConnectivity(err, "read frame payload")
		}
	}
	return tag, payload, nil
}

// Marshal encodes a message payload to its on-wire CBOR representation.
func Marshal(msg any) ([]byte, error) {
	b, err := cbor.Marshal(msg)
	if err != nil {
		return nil, varyserr.WrapProtocol(err, "encode payload")
	}
	return b, nil
}

// Unmarshal decodes a CBOR payload into out.
func Unmarshal(payload []byte, out any) error {
	if err := cbor.Unmarshal(payload, out); err != nil {
		return varyserr.WrapProtocol(err, "decode payload")
	}
	return nil
}

// WriteMessage encodes msg and writes it as a tagged frame to w.
func WriteMessage(w io.Writer, tag Tag, msg any) error {
	payload, err := Marshal(msg)
	if err != nil {
		return err
	}
	return WriteFrame(w, tag, payload)
}

// ReadMessage reads one frame from r and decodes its payload into out.
// Pass a nil out to read a frame and discard its payload; an empty
// payload leaves out untouched.
func ReadMessage(r io.Reader, out any) (Tag, error) {
	tag, payload, err := ReadFrame(r)
	if err != nil {
		return 0, err
	}
	if out == nil || len(payload) == 0 {
		return tag, nil
	}
	if err := Unmarshal(payload, out); err != nil {
		return tag, err
	}
	return tag, nil
}
