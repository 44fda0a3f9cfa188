package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Op names the change an event describes.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// ExpenseEvent is a lightweight change notification. It carries only the
// expense id; consumers that need the full record fetch it from the
// store (which for deletes will return nothing).
type ExpenseEvent struct {
	EventID   string    `json:"event_id"`
	Op        Op        `json:"op"`
	ExpenseID int64     `json:"expense_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEvent creates an event with a fresh event id.
func NewExpenseEvent(op Op, expenseID int64) *ExpenseEvent {
	return &ExpenseEvent{
		EventID:   uuid.NewString(),
		Op:        op,
		ExpenseID: expenseID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON parses an event from JSON bytes.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var e ExpenseEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Op {
	case OpCreated, OpUpdated, OpDeleted:
	default:
		return nil, fmt.Errorf("unknown event op %q", e.Op)
	}
	return &e, nil
}
