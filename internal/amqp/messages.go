package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"cajaclaro/internal/core"

	"github.com/google/uuid"
)

// TickRequestMessage asks a worker to materialize the due recurring
// definitions of one account. Redelivery is harmless: a tick against
// committed state emits nothing new.
type TickRequestMessage struct {
	AccountID uuid.UUID `json:"account_id"`
	// AsOf is optional; the worker uses its current business date when empty.
	AsOf      core.Date `json:"as_of"`
	Timestamp time.Time `json:"timestamp"`
}

var errMissingAccount = errors.New("tick request without account_id")

func NewTickRequestMessage(accountID uuid.UUID, asOf core.Date) *TickRequestMessage {
	return &TickRequestMessage{
		AccountID: accountID,
		AsOf:      asOf,
		Timestamp: time.Now().UTC(),
	}
}

func (m *TickRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TickRequestMessageFromJSON(data []byte) (*TickRequestMessage, error) {
	var msg TickRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.AccountID == uuid.Nil {
		return nil, errMissingAccount
	}
	return &msg, nil
}
