package mesh

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Data channel label shared by both ends of a session.
const ChannelLabel = "chat"

// Frame types carried on the chat data channel.
const (
	FrameTypeChat = "chat"
)

// Frame represents all data channel messages
type Frame struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// ChatMessage is a line of text sent to every peer in the mesh.
type ChatMessage struct {
	Text   string `msgpack:"text"`
	SentAt int64  `msgpack:"sentAt"` // unix milliseconds
}

// Time returns SentAt as a time.Time.
func (m ChatMessage) Time() time.Time {
	return time.UnixMilli(m.SentAt)
}

// DecodePayload decodes the frame payload into the provided struct
func (f Frame) DecodePayload(v any) error {
	return msgpack.Unmarshal(f.Payload, v)
}

// NewFrame creates a new Frame with the given type and payload
func NewFrame(t string, payload any) (Frame, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Type:    t,
		Payload: b,
	}, nil
}

// EncodeChat serialises a chat line for the data channel.
func EncodeChat(text string, at time.Time) ([]byte, error) {
	frame, err := NewFrame(FrameTypeChat, ChatMessage{Text: text, SentAt: at.UnixMilli()})
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(frame)
}

// ParseFrame decodes raw data channel bytes.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
