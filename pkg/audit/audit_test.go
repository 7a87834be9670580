package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger(t *testing.T) *Logger {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	l, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestLogAndQuery(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	if err := l.Log(ctx, EventA2ATaskNew, "task-1", "a2a", "created"); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, Filter{EventType: EventA2ATaskNew})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0].TaskID != "task-1" {
		t.Errorf("TaskID = %q, want %q", entries[0].TaskID, "task-1")
	}
	if entries[0].Detail != "created" {
		t.Errorf("Detail = %q, want %q", entries[0].Detail, "created")
	}
}

func TestLogStructuredDetail(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	detail := map[string]string{"skill": "risk-baseline", "reason": "token not listed"}
	if err := l.Log(ctx, EventA2ATaskFail, "task-1", "a2a", detail); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, _ := l.Query(ctx, Filter{Limit: 1})
	if len(entries) == 0 {
		t.Fatal("no entries")
	}
	want := `{"reason":"token not listed","skill":"risk-baseline"}`
	if entries[0].Detail != want {
		t.Errorf("Detail = %q, want %q", entries[0].Detail, want)
	}
}

func TestQueryFilters(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	if err := l.Log(ctx, EventA2ATaskNew, "t1", "a2a", "new"); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Log(ctx, EventA2ATaskDone, "t1", "a2a", "done"); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Log(ctx, EventNotifySend, "t2", "notify", "sent"); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, _ := l.Query(ctx, Filter{EventType: EventA2ATaskNew})
	if len(entries) != 1 {
		t.Errorf("by event: len = %d, want 1", len(entries))
	}

	entries, _ = l.Query(ctx, Filter{TaskID: "t1"})
	if len(entries) != 2 {
		t.Errorf("by task: len = %d, want 2", len(entries))
	}

	entries, _ = l.Query(ctx, Filter{Actor: "notify"})
	if len(entries) != 1 {
		t.Errorf("by actor: len = %d, want 1", len(entries))
	}

	entries, _ = l.Query(ctx, Filter{Limit: 1})
	if len(entries) != 1 {
		t.Errorf("by limit: len = %d, want 1", len(entries))
	}
}

func TestQueryTimeRange(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	if err := l.Log(ctx, EventA2ATaskNew, "", "", "event"); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, _ := l.Query(ctx, Filter{Since: before})
	if len(entries) != 1 {
		t.Errorf("since: len = %d, want 1", len(entries))
	}

	entries, _ = l.Query(ctx, Filter{Until: before})
	if len(entries) != 0 {
		t.Errorf("before event: len = %d, want 0", len(entries))
	}
}

func TestQueryOrdering(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	for _, d := range []string{"first", "second", "third"} {
		if err := l.Log(ctx, EventA2ATaskNew, "t1", "a2a", d); err != nil {
			t.Fatalf("Log: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].Detail != "third" {
		t.Errorf("entries[0].Detail = %q, want %q (DESC order)", entries[0].Detail, "third")
	}
	if entries[2].Detail != "first" {
		t.Errorf("entries[2].Detail = %q, want %q", entries[2].Detail, "first")
	}
}

func TestAutoMigrateIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	if _, err := New(db); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(db); err != nil {
		t.Fatalf("second New: %v", err)
	}
}

func TestPrune(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	if err := l.Log(ctx, EventA2ATaskNew, "old", "a2a", nil); err != nil {
		t.Fatal(err)
	}
	cutoff := time.Now().UTC().Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if err := l.Log(ctx, EventA2ATaskDone, "new", "a2a", nil); err != nil {
		t.Fatal(err)
	}

	n, err := l.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	entries, _ := l.Query(ctx, Filter{})
	if len(entries) != 1 || entries[0].TaskID != "new" {
		t.Errorf("remaining = %+v", entries)
	}
}
