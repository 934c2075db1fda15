package codec

import (
	"encoding/json"

	"github.com/mcoot/soundboard-relay/internal/transport"
)

// JSON encodes frames as JSON text messages
type JSON struct{}

func (JSON) Name() string { return SubprotocolJSON }

func (JSON) Binary() bool { return false }

func (JSON) Marshal(frame transport.Frame) ([]byte, error) {
	return json.Marshal(toWire(frame))
}

func (JSON) Unmarshal(data []byte, frame *transport.Frame) error {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	fromWire(w, frame)
	return nil
}
