package models

import "encoding/json"

// ExecuteMessage is the queue handoff body. Keep it minimal: the worker
// reloads everything else from the job store.
type ExecuteMessage struct {
	JobID     string `json:"job_id"`
	RequestID string `json:"request_id"`
}

// ToJSON serializes the handoff for the broker
func (m *ExecuteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExecuteMessageFromJSON deserializes a broker payload
func ExecuteMessageFromJSON(data []byte) (*ExecuteMessage, error) {
	var msg ExecuteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
