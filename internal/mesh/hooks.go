package mesh

import (
	"encoding/json"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

// Hook wraps handshake bodies on their way out and unwraps them on the way
// in. An Open error rejects the payload and fails that session only.
type Hook interface {
	Seal(kind protocol.SignalKind, body json.RawMessage) (json.RawMessage, error)
	Open(kind protocol.SignalKind, body json.RawMessage) (json.RawMessage, error)
}

// Chain composes hooks. Seal runs first to last, Open last to first.
type Chain []Hook

func (c Chain) Seal(kind protocol.SignalKind, body json.RawMessage) (json.RawMessage, error) {
	var err error
	for _, h := range c {
		if body, err = h.Seal(kind, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (c Chain) Open(kind protocol.SignalKind, body json.RawMessage) (json.RawMessage, error) {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		if body, err = c[i].Open(kind, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}
