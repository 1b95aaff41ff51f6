package journal

import (
	"encoding/csv"
	"os"
	"sync"
	"time"

	"github.com/tradeops/riskgate/internal/id"
)

// CSVJournal appends events to a CSV file. The journal is shared by
// concurrent choke-point evaluations and the exit monitor, and csv.Writer is
// not goroutine-safe, so every write holds the mutex.
type CSVJournal struct {
	mu sync.Mutex
	w  *csv.Writer
	f  *os.File
}

func NewCSV(path string) (*CSVJournal, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"event_id", "category", "level", "scope_key", "code", "message", "time"}); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}

	return &CSVJournal{w: w, f: f}, nil
}

func (j *CSVJournal) RecordEvent(e Event) error {
	if e.ID == "" {
		e.ID = id.New()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.w.Write([]string{
		e.ID,
		e.Category,
		e.Level,
		e.ScopeKey,
		e.Code,
		e.Message,
		e.Time.Format(time.RFC3339Nano),
	})
	j.w.Flush()
	return j.w.Error()
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}
