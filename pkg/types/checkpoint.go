package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Checkpoint is a named diagnostic marker recorded while a request is
// processed. Detail holds arbitrary JSON-serializable values.
type Checkpoint struct {
	Name   string                 `json:"name"`
	Detail map[string]interface{} `json:"detail,omitempty"`
	At     time.Time              `json:"at"`
}

// String renders the checkpoint for display. Detail keys are sorted so the
// output is stable.
func (c Checkpoint) String() string {
	if len(c.Detail) == 0 {
		return c.Name
	}

	keys := make([]string, 0, len(c.Detail))
	for k := range c.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatDetailValue(c.Detail[k])))
	}
	return fmt.Sprintf("%s (%s)", c.Name, strings.Join(parts, ", "))
}

func formatDetailValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Recorder accepts checkpoints. Document builders receive one so their
// internal steps end up in a crash report.
type Recorder interface {
	Record(name string, detail map[string]interface{})
}

// Trail is an ordered, concurrency-safe checkpoint log.
type Trail struct {
	mu          sync.Mutex
	checkpoints []Checkpoint
	now         func() time.Time
}

// NewTrail creates an empty trail.
func NewTrail() *Trail {
	return &Trail{now: time.Now}
}

// Record appends a checkpoint.
func (t *Trail) Record(name string, detail map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var copied map[string]interface{}
	if len(detail) > 0 {
		copied = make(map[string]interface{}, len(detail))
		for k, v := range detail {
			copied[k] = v
		}
	}

	now := time.Now
	if t.now != nil {
		now = t.now
	}
	t.checkpoints = append(t.checkpoints, Checkpoint{Name: name, Detail: copied, At: now()})
}

// Checkpoints returns a copy of the recorded checkpoints in order.
func (t *Trail) Checkpoints() []Checkpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Checkpoint{}, t.checkpoints...)
}

// Names returns just the checkpoint names, in order.
func (t *Trail) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, len(t.checkpoints))
	for i, c := range t.checkpoints {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of checkpoints recorded.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.checkpoints)
}

// NopRecorder discards every checkpoint.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(string, map[string]interface{}) {}
