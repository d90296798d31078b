package bulk

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestBoltLedger_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	l, err := OpenBoltLedger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e := Entry{Ref: "s3://in/a.tif", ItemID: "id-a", Status: StatusSucceeded, Attempts: 2, UpdatedAt: time.Unix(10, 0).UTC()}
	if err := l.Save(ctx, "job", e); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := l.Save(ctx, "other", Entry{Ref: "x", Status: StatusFailed}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	l, err = OpenBoltLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = l.Close() }()
	got, err := l.Load(ctx, "job")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	g := got[e.Ref]
	if len(got) != 1 || g.ItemID != e.ItemID || g.Status != e.Status || g.Attempts != 2 || !g.UpdatedAt.Equal(e.UpdatedAt) {
		t.Fatalf("got=%+v", got)
	}
	empty, err := l.Load(ctx, "missing")
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing job: %v %v", empty, err)
	}
}

func TestLedger_Snapshot(t *testing.T) {
	l := newLedger(time.Now)
	if !l.add(Entry{Ref: "b", Status: StatusPending}) || !l.add(Entry{Ref: "a", Status: StatusPending}) {
		t.Fatalf("add failed")
	}
	if l.add(Entry{Ref: "b"}) {
		t.Fatalf("duplicate add must be rejected")
	}
	l.update("a", func(e *Entry) { e.Status = StatusProcessing; e.Attempts++ })
	s := l.Snapshot()
	if len(s) != 2 || s[0].Ref != "b" || s[1].Status != StatusProcessing || s[1].Attempts != 1 {
		t.Fatalf("snapshot=%+v", s)
	}

	m := NewMemoryLedger()
	_ = m.Save(context.Background(), "j", s[1])
	got, _ := m.Load(context.Background(), "j")
	if got["a"].Attempts != 1 {
		t.Fatalf("memory ledger=%+v", got)
	}
}
