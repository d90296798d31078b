package bulk

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
)

// Entry is the ledger record of one input reference.
type Entry struct {
	Ref       string    `json:"ref"`
	ItemID    string    `json:"itemId"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Resumed   bool      `json:"resumed,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LedgerStore persists entries between runs of the same job.
type LedgerStore interface {
	Load(ctx context.Context, jobID string) (map[string]Entry, error)
	Save(ctx context.Context, jobID string, e Entry) error
}

// Ledger is the in-run accumulator. Every transition goes through it.
type Ledger struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*Entry
	now     func() time.Time
}

func newLedger(now func() time.Time) *Ledger {
	return &Ledger{entries: map[string]*Entry{}, now: now}
}

// add registers ref once; later duplicates are ignored and reported false.
func (l *Ledger) add(e Entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[e.Ref]; ok {
		return false
	}
	e.UpdatedAt = l.now()
	l.order = append(l.order, e.Ref)
	l.entries[e.Ref] = &e
	return true
}

// update applies fn under the lock and returns a copy of the result.
func (l *Ledger) update(ref string, fn func(*Entry)) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[ref]
	fn(e)
	e.UpdatedAt = l.now()
	return *e
}

// Snapshot returns the entries in manifest order.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.order))
	for _, ref := range l.order {
		out = append(out, *l.entries[ref])
	}
	return out
}

// MemoryLedger keeps job ledgers for the life of the process.
type MemoryLedger struct {
	mu   sync.Mutex
	jobs map[string]map[string]Entry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{jobs: map[string]map[string]Entry{}}
}

func (m *MemoryLedger) Load(_ context.Context, jobID string) (map[string]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Entry, len(m.jobs[jobID]))
	for k, v := range m.jobs[jobID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryLedger) Save(_ context.Context, jobID string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs[jobID] == nil {
		m.jobs[jobID] = map[string]Entry{}
	}
	m.jobs[jobID][e.Ref] = e
	return nil
}
