package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "j_" prefix
// Format: j_<uuid hex>
func NewJobID() string {
	return "j_" + hexUUID()
}

// NewRequestID generates a unique request correlation ID with the "req_" prefix
// Format: req_<uuid hex>
func NewRequestID() string {
	return "req_" + hexUUID()
}

// NewEventID generates a unique event ID with the "evt_" prefix
// Format: evt_<uuid hex>
func NewEventID() string {
	return "evt_" + hexUUID()
}

func hexUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
