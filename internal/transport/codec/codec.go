// Package codec encodes frames for the websocket subprotocols.
package codec

import (
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/transport"
)

// Subprotocol names negotiated during the websocket handshake
const (
	SubprotocolJSON = "osb.json"
	SubprotocolCBOR = "osb.cbor"
)

// Codec converts frames to and from their wire representation
type Codec interface {
	// Name is the subprotocol the codec serves
	Name() string

	// Binary reports whether encoded frames are binary rather than text
	Binary() bool

	Marshal(frame transport.Frame) ([]byte, error)
	Unmarshal(data []byte, frame *transport.Frame) error
}

var registry = map[string]Codec{
	SubprotocolJSON: JSON{},
	SubprotocolCBOR: CBOR{},
}

// Subprotocols lists the supported subprotocols in order of preference
func Subprotocols() []string {
	return []string{SubprotocolJSON, SubprotocolCBOR}
}

// Lookup returns the codec for a negotiated subprotocol. An empty name
// selects JSON, which clients get when they do not ask for a subprotocol.
func Lookup(name string) (Codec, bool) {
	if name == "" {
		return JSON{}, true
	}
	c, ok := registry[name]
	return c, ok
}

// wireFrame is the encoded shape of a frame. The error stays a generic value
// so peers may send any error document and have it relayed intact.
type wireFrame struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error any    `json:"error,omitempty"`
}

func toWire(frame transport.Frame) wireFrame {
	w := wireFrame{Event: frame.Event, ID: frame.ID, Data: frame.Data}
	if frame.Error != nil {
		w.Error = frame.Error.Wire()
	}
	return w
}

func fromWire(w wireFrame, frame *transport.Frame) {
	*frame = transport.Frame{Event: w.Event, ID: w.ID, Data: w.Data}
	if w.Error != nil {
		frame.Error = model.DecodeProtocolError(w.Error)
	}
}
