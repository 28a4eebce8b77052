package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntryStoppedMessage announces a completed time entry. It carries only the
// ids; consumers load the entry itself from the database.
type EntryStoppedMessage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryStoppedMessage(id, userID int64) *EntryStoppedMessage {
	return &EntryStoppedMessage{
		ID:        id,
		UserID:    userID,
		MessageID: uuid.NewString(),
		Timestamp: time.Now(),
	}
}

func (m *EntryStoppedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryStoppedMessageFromJSON(data []byte) (*EntryStoppedMessage, error) {
	var msg EntryStoppedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
