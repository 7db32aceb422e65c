package channel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Codec frames a Message for a byte-oriented transport.
type Codec interface {
	Name() string
	Binary() bool
	Marshal(msg Message) ([]byte, error)
	Unmarshal(data []byte) (Message, error)
}

// CodecByName resolves a configured codec name; empty selects json.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecCBOR:
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }
func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Marshal(msg Message) ([]byte, error) {
	if strings.TrimSpace(msg.Name) == "" {
		return nil, ErrEmptyName
	}
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// CBORCodec carries the same envelope in CBOR; the payload stays JSON bytes.
type CBORCodec struct{}

func (CBORCodec) Name() string { return CodecCBOR }
func (CBORCodec) Binary() bool { return true }

type cborEnvelope struct {
	Name    string `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint,omitempty"`
}

func (CBORCodec) Marshal(msg Message) ([]byte, error) {
	if strings.TrimSpace(msg.Name) == "" {
		return nil, ErrEmptyName
	}
	return cbor.Marshal(cborEnvelope{Name: msg.Name, Payload: msg.Payload})
}

func (CBORCodec) Unmarshal(data []byte) (Message, error) {
	var env cborEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Message{}, err
	}
	return Message{Name: env.Name, Payload: env.Payload}, nil
}
