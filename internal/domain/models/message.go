package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is an outbound SMS read from the external message store.
// Immutable once observed; the engine never writes it back.
type Message struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"account_id"`
	FromNumber string    `json:"from_number"`
	ToNumber   string    `json:"to_number"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
}
