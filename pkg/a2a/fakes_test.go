package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory TaskStore with the same transition rules as
// the SQLite store.
type memStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
	seq   int
	order map[string]int

	// beforeUpdate runs before each status change; tests use it to race
	// a cancel against the pipeline.
	beforeUpdate func(id string, to TaskState)
	failCreate   error
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*Task), order: make(map[string]int)}
}

func clone(t *Task) *Task {
	data, _ := json.Marshal(t)
	var out Task
	_ = json.Unmarshal(data, &out)
	return &out
}

func (s *memStore) CreateTask(ctx context.Context, contextID string) (*Task, error) {
	if s.failCreate != nil {
		return nil, s.failCreate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if contextID == "" {
		contextID = uuid.NewString()
	}
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStatePending, Timestamp: now},
		Messages:  []Message{},
		Artifacts: []Artifact{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.seq++
	s.tasks[t.ID] = t
	s.order[t.ID] = s.seq
	return clone(t), nil
}

func (s *memStore) GetTask(ctx context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("mem: %w", ErrTaskNotFound)
	}
	return clone(t), nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, state TaskState, msg *Message) (*Task, error) {
	if s.beforeUpdate != nil {
		s.beforeUpdate(id, state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("mem: %w", ErrTaskNotFound)
	}
	if err := CheckTransition(t.Status.State, state); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t.Status = TaskStatus{State: state, Timestamp: now, Message: msg}
	t.UpdatedAt = now
	return clone(t), nil
}

func (s *memStore) AddMessage(ctx context.Context, id string, msg Message) (*Task, error) {
	return s.mutate(id, func(t *Task) { t.Messages = append(t.Messages, msg) })
}

func (s *memStore) AddArtifact(ctx context.Context, id string, a Artifact) (*Task, error) {
	return s.mutate(id, func(t *Task) { t.Artifacts = append(t.Artifacts, a) })
}

func (s *memStore) mutate(id string, fn func(*Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("mem: %w", ErrTaskNotFound)
	}
	if t.Status.State.Terminal() {
		return nil, fmt.Errorf("mem: %w", ErrTerminalState)
	}
	fn(t)
	t.UpdatedAt = time.Now().UTC()
	return clone(t), nil
}

func (s *memStore) ListTasks(ctx context.Context, limit, offset int) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		all = append(all, clone(t))
	}
	sort.Slice(all, func(i, j int) bool { return s.order[all[i].ID] > s.order[all[j].ID] })
	if offset >= len(all) {
		return []*Task{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *memStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, t := range s.tasks {
		st.Total++
		switch t.Status.State {
		case TaskStatePending:
			st.Pending++
		case TaskStateWorking:
			st.Working++
		case TaskStateInputRequired:
			st.InputRequired++
		case TaskStateCompleted:
			st.Completed++
		case TaskStateFailed:
			st.Failed++
		case TaskStateCanceled:
			st.Canceled++
		}
	}
	return st, nil
}

// fakeSkills serves canned skill functions.
type fakeSkills map[string]SkillFunc

func (f fakeSkills) Lookup(id string) (SkillFunc, bool) {
	fn, ok := f[id]
	return fn, ok
}

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []*Task
}

func (p *recordingPublisher) Publish(t *Task) {
	p.mu.Lock()
	p.tasks = append(p.tasks, t)
	p.mu.Unlock()
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

type panicPublisher struct{}

func (panicPublisher) Publish(*Task) { panic("publisher exploded") }

func okSkill(text string) SkillFunc {
	return func(ctx context.Context, input map[string]any) SkillResult {
		return SkillResult{Parts: []Part{
			TextPart(text),
			DataPart(map[string]any{"echo": input["tokenAddress"]}),
		}}
	}
}

func errSkill(msg string) SkillFunc {
	return func(ctx context.Context, input map[string]any) SkillResult {
		return SkillResult{Error: msg}
	}
}
