package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes envelopes for one websocket frame type.
type Codec interface {
	Name() string
	FrameType() int
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte, msg *Message) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return "json" }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Marshal(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg *Message) error {
	return json.Unmarshal(data, msg)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return "msgpack" }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Marshal(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (msgpackCodec) Unmarshal(data []byte, msg *Message) error {
	return msgpack.Unmarshal(data, msg)
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// CodecByName resolves a configured codec name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", JSON.Name():
		return JSON, nil
	case Msgpack.Name():
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// CodecForFrame picks the codec matching an incoming websocket frame.
func CodecForFrame(frameType int) (Codec, error) {
	switch frameType {
	case websocket.TextMessage:
		return JSON, nil
	case websocket.BinaryMessage:
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFrame, frameType)
	}
}

// Decode parses a frame into an envelope using the codec implied by its type.
func Decode(frameType int, data []byte) (*Message, Codec, error) {
	codec, err := CodecForFrame(frameType)
	if err != nil {
		return nil, nil, err
	}

	var msg Message
	if err := codec.Unmarshal(data, &msg); err != nil {
		return nil, codec, fmt.Errorf("decode %s frame: %w", codec.Name(), err)
	}
	return &msg, codec, nil
}
