package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
)

// taskRecord is one task document. State, context and creation time are
// lifted out of the JSON document so they can be indexed.
type taskRecord struct {
	ID        string    `gorm:"primaryKey;column:id"`
	ContextID string    `gorm:"column:context_id;not null;index:idx_tasks_context"`
	State     string    `gorm:"column:state;not null;index:idx_tasks_state"`
	Document  string    `gorm:"column:document;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_tasks_created;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (taskRecord) TableName() string {
	return "tasks"
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func New(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: getting sql handle: %w", err)
	}
	// A single connection serializes writers, keeps ":memory:" databases
	// shared and makes every read observe the preceding write.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if err := db.AutoMigrate(&taskRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DB exposes the underlying handle so other tables (the audit log) can share
// the same database file.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Checkpoint copies the write-ahead log into the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		return fmt.Errorf("store: checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateTask(ctx context.Context, contextID string) (*a2a.Task, error) {
	if contextID == "" {
		contextID = uuid.NewString()
	}
	now := s.now()
	task := &a2a.Task{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Status:    a2a.TaskStatus{State: a2a.TaskStatePending, Timestamp: now},
		Messages:  []a2a.Message{},
		Artifacts: []a2a.Artifact{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	doc, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("store: encoding task: %w", err)
	}

	rec := &taskRecord{
		ID:        task.ID,
		ContextID: task.ContextID,
		State:     string(task.Status.State),
		Document:  string(doc),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("store: creating task: %w", err)
	}
	return task, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*a2a.Task, error) {
	var rec taskRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store: task %q: %w", id, a2a.ErrTaskNotFound)
		}
		return nil, fmt.Errorf("store: reading task %q: %w", id, err)
	}
	return decodeTask(rec)
}

// UpdateStatus replaces the task status. Transitions out of a terminal state
// are refused with a2a.ErrTerminalState.
func (s *Store) UpdateStatus(ctx context.Context, id string, state a2a.TaskState, msg *a2a.Message) (*a2a.Task, error) {
	return s.mutate(ctx, id, func(task *a2a.Task, now time.Time) error {
		if err := a2a.CheckTransition(task.Status.State, state); err != nil {
			return err
		}
		task.Status = a2a.TaskStatus{State: state, Timestamp: now, Message: msg}
		return nil
	})
}

func (s *Store) AddMessage(ctx context.Context, id string, msg a2a.Message) (*a2a.Task, error) {
	return s.mutate(ctx, id, func(task *a2a.Task, _ time.Time) error {
		if task.Status.State.Terminal() {
			return fmt.Errorf("%w: %s", a2a.ErrTerminalState, task.Status.State)
		}
		task.Messages = append(task.Messages, msg)
		return nil
	})
}

func (s *Store) AddArtifact(ctx context.Context, id string, artifact a2a.Artifact) (*a2a.Task, error) {
	return s.mutate(ctx, id, func(task *a2a.Task, _ time.Time) error {
		if task.Status.State.Terminal() {
			return fmt.Errorf("%w: %s", a2a.ErrTerminalState, task.Status.State)
		}
		task.Artifacts = append(task.Artifacts, artifact)
		return nil
	})
}

// ListTasks returns tasks newest first.
func (s *Store) ListTasks(ctx context.Context, limit, offset int) ([]*a2a.Task, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	q := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("rowid DESC").
		Limit(limit)
	if offset > 0 {
		q = q.Offset(offset)
	}

	var recs []taskRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("store: listing tasks: %w", err)
	}

	tasks := make([]*a2a.Task, 0, len(recs))
	for _, rec := range recs {
		task, err := decodeTask(rec)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *Store) Stats(ctx context.Context) (a2a.Stats, error) {
	var rows []struct {
		State string
		Count int
	}
	err := s.db.WithContext(ctx).
		Model(&taskRecord{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return a2a.Stats{}, fmt.Errorf("store: counting tasks: %w", err)
	}

	var stats a2a.Stats
	for _, r := range rows {
		stats.Total += r.Count
		switch a2a.TaskState(r.State) {
		case a2a.TaskStatePending:
			stats.Pending = r.Count
		case a2a.TaskStateWorking:
			stats.Working = r.Count
		case a2a.TaskStateInputRequired:
			stats.InputRequired = r.Count
		case a2a.TaskStateCompleted:
			stats.Completed = r.Count
		case a2a.TaskStateFailed:
			stats.Failed = r.Count
		case a2a.TaskStateCanceled:
			stats.Canceled = r.Count
		}
	}
	return stats, nil
}

// PruneTasks deletes terminal tasks last updated before the cutoff and
// reports how many were removed. Active tasks are never pruned.
func (s *Store) PruneTasks(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ?", terminalStates, before.UTC()).
		Delete(&taskRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: pruning tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var terminalStates = []string{
	string(a2a.TaskStateCompleted),
	string(a2a.TaskStateFailed),
	string(a2a.TaskStateCanceled),
}

// mutate runs a read-modify-write of one task document inside a transaction.
func (s *Store) mutate(ctx context.Context, id string, fn func(task *a2a.Task, now time.Time) error) (*a2a.Task, error) {
	var out *a2a.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec taskRecord
		if err := tx.Where("id = ?", id).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("store: task %q: %w", id, a2a.ErrTaskNotFound)
			}
			return fmt.Errorf("store: reading task %q: %w", id, err)
		}

		task, err := decodeTask(rec)
		if err != nil {
			return err
		}

		now := s.now()
		if err := fn(task, now); err != nil {
			return err
		}
		task.UpdatedAt = now

		doc, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("store: encoding task %q: %w", id, err)
		}

		err = tx.Model(&taskRecord{}).Where("id = ?", id).Updates(map[string]any{
			"state":      string(task.Status.State),
			"document":   string(doc),
			"updated_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("store: writing task %q: %w", id, err)
		}

		out = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeTask(rec taskRecord) (*a2a.Task, error) {
	var task a2a.Task
	if err := json.Unmarshal([]byte(rec.Document), &task); err != nil {
		return nil, fmt.Errorf("store: decoding task %q: %w", rec.ID, err)
	}
	if task.Messages == nil {
		task.Messages = []a2a.Message{}
	}
	if task.Artifacts == nil {
		task.Artifacts = []a2a.Artifact{}
	}
	return &task, nil
}
