/*
This package defines the messages the backend pushes down the event stream and
the codec that turns raw frames into them. Every inbound frame passes through
Decode before anything else in the client sees it; frames that fail to parse
or validate are rejected here and never reach the consumer or the offline
queue.
*/
package message

import (
	"encoding/json"
	"fmt"
)

const CurrentSchemaVersion = "1.0"

// The different categories of messages the backend pushes to a kiosk
type MessageType string

const (
	// Control messages, consumed by the stream client and never forwarded
	Ping      MessageType = "ping"
	Connected MessageType = "connected"

	// Inventory changed for a product the kiosk may be displaying
	InventoryUpdate MessageType = "inventory_update"

	// A pending payment moved through its lifecycle (authorized, captured,
	// declined, ...)
	PaymentStatus MessageType = "payment_status"

	// The backend amended an in-flight order (price adjustment, void, ...)
	OrderUpdate MessageType = "order_update"
)

// UpdateType qualifies an InventoryUpdate
type UpdateType string

const (
	StockChanged   UpdateType = "stock_changed"
	PriceChanged   UpdateType = "price_changed"
	ProductRemoved UpdateType = "product_removed"
)

type Message struct {
	Type       MessageType     `json:"type"`
	UpdateType UpdateType      `json:"updateType,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// IsControl reports whether the message is plumbing between the backend and
// the stream client rather than something the consumer should see
func (m Message) IsControl() bool {
	return m.Type == Ping || m.Type == Connected
}

var knownTypes = map[MessageType]bool{
	Ping:            true,
	Connected:       true,
	InventoryUpdate: true,
	PaymentStatus:   true,
	OrderUpdate:     true,
}

var knownUpdateTypes = map[UpdateType]bool{
	StockChanged:   true,
	PriceChanged:   true,
	ProductRemoved: true,
}

// Decode parses a raw frame into a Message and validates it against the
// schema. The error distinguishes nothing for callers beyond "this frame is
// garbage"; they are expected to drop and log.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, &ValidationError{Reason: fmt.Sprintf("malformed payload: %s", err)}
	}

	if err := msg.validate(); err != nil {
		return msg, err
	}

	return msg, nil
}

func (m Message) validate() error {
	if m.Type == "" {
		return &ValidationError{Reason: "message is missing its type discriminator"}
	}

	if !knownTypes[m.Type] {
		return &ValidationError{Reason: fmt.Sprintf("unknown message type %q", m.Type)}
	}

	if m.UpdateType != "" && !knownUpdateTypes[m.UpdateType] {
		return &ValidationError{Reason: fmt.Sprintf("unknown update type %q", m.UpdateType)}
	}

	// Control frames carry no payload worth validating
	if m.IsControl() {
		return nil
	}

	if m.Timestamp <= 0 {
		return &ValidationError{Reason: fmt.Sprintf("%s message has no timestamp", m.Type)}
	}

	return nil
}
