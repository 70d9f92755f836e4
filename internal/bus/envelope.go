package bus

import (
	"encoding/json"
	"fmt"

	"github.com/aisbot/aisbot/pkg/models"
)

// encodeEnvelope serializes a message for the wire. Timestamps marshal as
// RFC 3339 strings via the models json tags.
func encodeEnvelope(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("bus: encode envelope: %w", err)
	}
	return data, nil
}

// unwrapPayload removes one layer of JSON string quoting when present. Some
// fabrics re-quote payloads in transit, so a message can arrive as a JSON
// string whose contents are the real envelope: parse once, and if the result
// is still a string, parse again.
func unwrapPayload(data []byte) []byte {
	var quoted string
	if err := json.Unmarshal(data, &quoted); err == nil {
		return []byte(quoted)
	}
	return data
}

// decodeInbound parses an inbound envelope, tolerating double-encoded JSON.
func decodeInbound(data []byte) (*models.InboundMessage, error) {
	var msg models.InboundMessage
	if err := json.Unmarshal(unwrapPayload(data), &msg); err != nil {
		return nil, fmt.Errorf("bus: decode inbound envelope: %w", err)
	}
	return &msg, nil
}

// decodeOutbound parses an outbound envelope, tolerating double-encoded JSON.
func decodeOutbound(data []byte) (*models.OutboundMessage, error) {
	var msg models.OutboundMessage
	if err := json.Unmarshal(unwrapPayload(data), &msg); err != nil {
		return nil, fmt.Errorf("bus: decode outbound envelope: %w", err)
	}
	return &msg, nil
}
