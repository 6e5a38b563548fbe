package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExportRequestMessage asks the worker to write a report to Google Sheets.
// It carries the request, not the numbers: the worker aggregates on its own
// copy of the dataset.
type ExportRequestMessage struct {
	JobID          uuid.UUID `json:"job_id"`
	EntityIDs      []string  `json:"entity_ids"`
	IncludeMonthly bool      `json:"include_monthly"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewExportRequestMessage creates a message with a fresh job id.
func NewExportRequestMessage(entityIDs []string, includeMonthly bool) *ExportRequestMessage {
	return &ExportRequestMessage{
		JobID:          uuid.New(),
		EntityIDs:      entityIDs,
		IncludeMonthly: includeMonthly,
		Timestamp:      time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExportRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportRequestMessageFromJSON decodes a message. A missing job id is an error.
func ExportRequestMessageFromJSON(data []byte) (*ExportRequestMessage, error) {
	var msg ExportRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == uuid.Nil {
		return nil, errors.New("export request without job id")
	}
	return &msg, nil
}
