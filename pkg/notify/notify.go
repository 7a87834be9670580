package notify

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
)

const (
	EventTaskCompleted = "task.completed"

	maxSummaryRunes = 280
)

// Notifier delivers one completed task to an outbound channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, task *a2a.Task) error
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Name() string                            { return "noop" }
func (Noop) Notify(context.Context, *a2a.Task) error { return nil }

// Multi fans a task out to several notifiers. Every notifier is tried and
// the failures are joined.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, "+")
}

func (m Multi) Notify(ctx context.Context, task *a2a.Task) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, task); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Payload is the JSON body sent to webhook receivers.
type Payload struct {
	Event     string    `json:"event"`
	TaskID    string    `json:"taskId"`
	ContextID string    `json:"contextId"`
	SkillID   string    `json:"skillId,omitempty"`
	State     string    `json:"state"`
	Text      string    `json:"text"`
	Task      *a2a.Task `json:"task"`
	SentAt    time.Time `json:"sentAt"`
}

func NewPayload(task *a2a.Task, now time.Time) Payload {
	return Payload{
		Event:     EventTaskCompleted,
		TaskID:    task.ID,
		ContextID: task.ContextID,
		SkillID:   SkillOf(task),
		State:     string(task.Status.State),
		Text:      Summary(task),
		Task:      task,
		SentAt:    now.UTC(),
	}
}

// SkillOf recovers the skill id from the task's result artifact name.
func SkillOf(task *a2a.Task) string {
	for _, a := range task.Artifacts {
		if id, ok := strings.CutSuffix(a.Name, "-result"); ok && id != "" {
			return id
		}
	}
	return ""
}

// Summary is a short, post-ready line describing the task outcome.
func Summary(task *a2a.Task) string {
	text := ""
	if m := task.Status.Message; m != nil {
		for _, p := range m.Parts {
			if p.Type == a2a.PartTypeText && p.Text != "" {
				text = p.Text
				break
			}
		}
	}
	if text == "" {
		text = "Analysis " + string(task.Status.State) + "."
	}
	return truncate(strings.TrimSpace(text), maxSummaryRunes)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
