package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/mcoot/soundboard-relay/internal/transport"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: sorted keys, smallest integers
	encOptions := cbor.CoreDetEncOptions()
	// Timestamps travel as text, matching the JSON codec
	encOptions.Time = cbor.TimeRFC3339Nano
	cborEnc, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	cborDec, err = cbor.DecOptions{
		// Payloads are generic documents; decode maps the way encoding/json does
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR encodes frames as binary CBOR messages
type CBOR struct{}

func (CBOR) Name() string { return SubprotocolCBOR }

func (CBOR) Binary() bool { return true }

func (CBOR) Marshal(frame transport.Frame) ([]byte, error) {
	return cborEnc.Marshal(toWire(frame))
}

func (CBOR) Unmarshal(data []byte, frame *transport.Frame) error {
	var w wireFrame
	if err := cborDec.Unmarshal(data, &w); err != nil {
		return err
	}
	fromWire(w, frame)
	return nil
}
