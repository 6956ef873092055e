package wire

import (
	"encoding/binary"
	"io"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/varyserr"
)

// GetRequest is the single request a data-plane socket carries: the
// descriptor of the flow the caller wants bytes for.
type GetRequest struct {
	Desc cluster.FlowDescription `cbor:"1,keyasint"`
}

// WriteGetRequest writes the client -> server half of the data-plane
// protocol (spec §6.2 step 1): a length-prefixed CBOR-encoded GetRequest.
func WriteGetRequest(w io.Writer, desc cluster.FlowDescription) error {
	payload, err := Marshal(GetRequest{Desc: desc})
	if err != nil {
		return err
	}
	return writeLenPrefixed(w, payload)
}

// ReadGetRequest reads the server-side half of step 1.
func ReadGetRequest(r io.Reader) (cluster.FlowDescription, error) {
	payload, err := readLenPrefixed(r)
	if err != nil {
		return cluster.FlowDescription{}, err
	}
	var req GetRequest
	if err := Unmarshal(payload, &req); err != nil {
		return cluster.FlowDescription{}, err
	}
	return req.Desc, nil
}

const (
	optionAbsent byte = 0x00
	optionPresent byte = 0x01
)

// WriteOptionalBytes writes the server -> client half of the data-plane
// protocol (spec §6.2 step 2): tag 0x01+length+payload, or tag 0x00 for
// an empty/not-found reply.
func WriteOptionalBytes(w io.Writer, data []byte, present bool) error {
	if !present {
		_, err := w.Write([]byte{optionAbsent})
		if err != nil {
			return varyserr.WrapConnectivity(err, "write empty option")
		}
		return nil
	}
	if _, err := w.Write([]byte{optionPresent}); err != nil {
		return varyserr.WrapConnectivity(err, "write option tag")
	}
	return writeLenPrefixed(w, data)
}

// ReadOptionalBytes reads the client-side half of step 2. present is
// false when the server returned the empty tag (flow unknown at the
// server — surfaced by the caller as NotFoundError).
func ReadOptionalBytes(r io.Reader) (data []byte, present bool, err error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, false, varyserr.WrapConnectivity(err, "read option tag")
	}
	switch tag[0] {
	case optionAbsent:
		return nil, false, nil
	case optionPresent:
		data, err := readLenPrefixed(r)
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	default:
		return nil, false, varyserr.NewProtocol("unknown option tag 0x%02x", tag[0])
	}
}

// ReadOptionalBytesHeader reads the option tag and, when present, the
// payload's length prefix only — it does not read the payload itself.
// A caller that wants to rate-limit the payload read (internal/client.Get)
// interposes a throttle.Limiter over the remaining bytes of r instead of
// throttling an already fully-buffered copy.
func ReadOptionalBytesHeader(r io.Reader) (length uint64, present bool, err error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return 0, false, varyserr.WrapConnectivity(err, "read option tag")
	}
	switch tag[0] {
	case optionAbsent:
		return 0, false, nil
	case optionPresent:
		length, err := readLenPrefix(r)
		if err != nil {
			return 0, false, err
		}
		return length, true, nil
	default:
		return 0, false, varyserr.NewProtocol("unknown option tag 0x%02x", tag[0])
	}
}

func writeLenPrefixed(w io.Writer, payload []byte) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return varyserr.WrapConnectivity(err, "write length prefix")
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return varyserr.WrapConnectivity(err, "write payload")
	}
	return nil
}

func readLenPrefix(r io.Reader) (uint64, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, varyserr.WrapConnectivity(err, "read length prefix")
	}
	return binary.BigEndian.Uint64(lenBuf[:]), nil
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	length, err := readLenPrefix(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, varyserr.WrapConnectivity(err, "read payload")
		}
	}
	return payload, nil
}
