package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"expenses/internal/core"
)

// ExpenseRecordedMessage announces one record appended to an identity's
// ledger. Fields carry their wire form so consumers need no shared types.
type ExpenseRecordedMessage struct {
	Identity    string    `json:"identity"`
	Date        string    `json:"date"`
	Category    string    `json:"category"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewExpenseRecordedMessage creates a message for r stamped with the current time
func NewExpenseRecordedMessage(id core.Identity, r core.Record) *ExpenseRecordedMessage {
	return &ExpenseRecordedMessage{
		Identity:    id.String(),
		Date:        r.Date.String(),
		Category:    r.Category.String(),
		Amount:      r.Amount.String(),
		Currency:    r.Currency.String(),
		Description: r.Description,
		Timestamp:   time.Now(),
	}
}

// Record parses the message back into a validated record.
func (m *ExpenseRecordedMessage) Record() (core.Record, error) {
	date, err := core.ParseDate(m.Date)
	if err != nil {
		return core.Record{}, fmt.Errorf("date %q: %w", m.Date, err)
	}
	category, err := core.ParseCategory(m.Category)
	if err != nil {
		return core.Record{}, fmt.Errorf("category %q: %w", m.Category, err)
	}
	amount, err := core.ParseAmount(m.Amount)
	if err != nil {
		return core.Record{}, fmt.Errorf("amount %q: %w", m.Amount, err)
	}
	cur, err := core.ParseCurrency(m.Currency)
	if err != nil {
		return core.Record{}, fmt.Errorf("currency %q: %w", m.Currency, err)
	}
	return core.Record{
		Date:        date,
		Category:    category,
		Amount:      amount,
		Currency:    cur,
		Description: m.Description,
	}, nil
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseRecordedMessageFromJSON decodes a message and checks it names an identity.
func ExpenseRecordedMessageFromJSON(data []byte) (*ExpenseRecordedMessage, error) {
	var msg ExpenseRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Identity == "" {
		return nil, fmt.Errorf("message has no identity")
	}
	return &msg, nil
}
