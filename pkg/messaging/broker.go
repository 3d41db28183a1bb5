package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	// Subscribe returns a channel that is closed once ctx is done.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Encode marshals a message the way every broker puts it on the wire.
// Raw JSON and byte slices are sent unchanged.
func Encode(message interface{}) ([]byte, error) {
	switch m := message.(type) {
	case json.RawMessage:
		return m, nil
	case []byte:
		return m, nil
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return payload, nil
}
