package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONLines writes each event as one line of JSON.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

func (j *JSONLines) Emit(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(e); err != nil {
		return fmt.Errorf("write %s event: %w", e.Type, err)
	}
	return nil
}
