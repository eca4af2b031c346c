package job

import (
	"encoding/json"
	"time"
)

// Job records an ingestion task that terminated in FAILED, keeping the
// original payload around so an operator can re-trigger it.
type Job struct {
	ID        string          `json:"id"`
	MemoryID  string          `json:"memory_id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
