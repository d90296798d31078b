package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammed-shakir/raster-intake/internal/objectstore"
)

type JobReport struct {
	JobID      string    `json:"jobId"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Pending    int       `json:"pending"`
	Resumed    int       `json:"resumed"`
	Canceled   bool      `json:"canceled"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
	Items      []Entry   `json:"items"`
}

// Done reports whether every entry reached succeeded or failed.
func (r JobReport) Done() bool { return r.Succeeded+r.Failed == r.Total }

func (r *run) report() JobReport {
	r.mu.Lock()
	rep := JobReport{
		JobID:      r.id,
		Canceled:   r.canceled,
		StartedAt:  r.started,
		FinishedAt: r.finished,
	}
	r.mu.Unlock()

	rep.Items = r.ledger.Snapshot()
	rep.Total = len(rep.Items)
	for _, e := range rep.Items {
		switch e.Status {
		case StatusSucceeded:
			rep.Succeeded++
			if e.Resumed {
				rep.Resumed++
			}
		case StatusFailed:
			rep.Failed++
		default:
			rep.Pending++
		}
	}
	return rep
}

// ReportKey is where a job report is stored under prefix.
func ReportKey(prefix, jobID string) string {
	return objectstore.Location{Key: prefix}.Join("jobs", jobID, "report.json").Key
}

func WriteReport(ctx context.Context, store objectstore.Store, prefix string, rep JobReport) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report %s: %w", rep.JobID, err)
	}
	key := ReportKey(prefix, rep.JobID)
	if err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), objectstore.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("store report %s: %w", key, err)
	}
	return nil
}
