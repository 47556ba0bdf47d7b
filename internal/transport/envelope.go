package transport

import (
	"encoding/base64"
	"encoding/json"
)

// Envelope is the JSON body of a conversion request.
type Envelope struct {
	// Input is the packed archive; it travels base64 encoded.
	Input []byte
	// Options are passed through to the converter untouched.
	Options map[string]any
	// ID is an optional cache key for the service. A nil ID is omitted from the body.
	ID any
}

type envelopeJSON struct {
	Input   string         `json:"input"`
	Options map[string]any `json:"options"`
	ID      any            `json:"id,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	options := e.Options
	if options == nil {
		options = map[string]any{}
	}

	return json.Marshal(envelopeJSON{
		Input:   base64.StdEncoding.EncodeToString(e.Input),
		Options: options,
		ID:      e.ID,
	})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	input, err := base64.StdEncoding.DecodeString(raw.Input)
	if err != nil {
		return err
	}

	*e = Envelope{Input: input, Options: raw.Options, ID: raw.ID}
	return nil
}
