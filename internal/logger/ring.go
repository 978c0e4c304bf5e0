package logger

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultCapacity = 200

type Entry struct {
	Time    time.Time
	Level   string
	Message string
}

// Ring keeps the most recent log entries of a run. When full, the oldest
// entry is overwritten.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Write accepts one JSON-encoded zerolog event per call.
func (r *Ring) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		r.Add(Entry{Time: time.Now(), Level: "INFO", Message: strings.TrimSpace(string(p))})
		return len(p), nil
	}

	e := Entry{Time: time.Now()}
	if v, ok := raw[zerolog.LevelFieldName].(string); ok {
		e.Level = strings.ToUpper(v)
	}
	if v, ok := raw[zerolog.MessageFieldName].(string); ok {
		e.Message = v
	}
	if v, ok := raw[zerolog.ErrorFieldName].(string); ok && v != "" {
		if e.Message == "" {
			e.Message = v
		} else {
			e.Message += ": " + v
		}
	}
	if v, ok := raw[zerolog.TimestampFieldName].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			e.Time = ts
		}
	}
	r.Add(e)
	return len(p), nil
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Entries returns a copy ordered oldest to newest.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	r.full = false
	for i := range r.entries {
		r.entries[i] = Entry{}
	}
}
