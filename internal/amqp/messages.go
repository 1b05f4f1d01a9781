package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeOp names the mutation that produced a ChangeEvent.
type ChangeOp string

const (
	OpCreated  ChangeOp = "created"
	OpUpdated  ChangeOp = "updated"
	OpDeleted  ChangeOp = "deleted"
	OpCleared  ChangeOp = "cleared"
	OpImported ChangeOp = "imported"
)

func (op ChangeOp) IsValid() bool {
	switch op {
	case OpCreated, OpUpdated, OpDeleted, OpCleared, OpImported:
		return true
	}
	return false
}

// ChangeEvent announces that the expense set changed. It carries no record
// data; consumers read the store themselves. ID is empty for bulk operations.
type ChangeEvent struct {
	Op         ChangeOp  `json:"op"`
	ID         string    `json:"id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewChangeEvent(op ChangeOp, id string) ChangeEvent {
	return ChangeEvent{Op: op, ID: id, OccurredAt: time.Now().UTC()}
}

func (e ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChangeEventFromJSON decodes and checks a message body.
func ChangeEventFromJSON(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return e, err
	}
	if !e.Op.IsValid() {
		return e, fmt.Errorf("unknown change op %q", e.Op)
	}
	return e, nil
}
