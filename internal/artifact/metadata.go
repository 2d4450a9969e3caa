package artifact

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Metadata is the task record carried inside every container. The password
// field is the secret the server uses to decrypt the payload during
// processing; model selects the transcription configuration.
type Metadata struct {
	TaskID     string    `json:"task_id"`
	Filename   string    `json:"filename"`
	Password   string    `json:"password"`
	Model      string    `json:"model"`
	SubmitTime time.Time `json:"submit_time"`
}

// Validate checks the fields required for a metadata record to be usable.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return fmt.Errorf("%w: metadata missing task_id", ErrMalformed)
	}
	if strings.TrimSpace(m.Filename) == "" {
		return fmt.Errorf("%w: metadata missing filename", ErrMalformed)
	}
	return nil
}

// MarshalCanonical renders the metadata in its canonical archive form:
// two-space indented JSON, matching what every producer writes.
func (m Metadata) MarshalCanonical() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalCanonical parses a metadata archive entry.
func (m *Metadata) UnmarshalCanonical(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	return m.Validate()
}
