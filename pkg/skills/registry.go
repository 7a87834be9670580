package skills

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

// Registry maps skill ids to skills. It satisfies a2a.SkillSet.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

func NewRegistry(skills ...Skill) *Registry {
	r := &Registry{skills: make(map[string]Skill)}
	for _, sk := range skills {
		r.Register(sk)
	}
	return r
}

// Register adds sk, replacing any skill with the same id.
func (r *Registry) Register(sk Skill) {
	r.mu.Lock()
	r.skills[sk.Card().ID] = sk
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sk, ok := r.skills[id]
	return sk, ok
}

// Lookup returns the skill as an a2a.SkillFunc guarded against panics.
func (r *Registry) Lookup(id string) (a2a.SkillFunc, bool) {
	sk, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, input map[string]any) (result a2a.SkillResult) {
		defer func() {
			if rec := recover(); rec != nil {
				telemetry.FromContext(ctx).Error("skill panicked",
					slog.String("skill", id),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				telemetry.Metrics.ErrorsTotal.WithLabelValues("skill").Inc()
				result = a2a.SkillResult{Error: fmt.Sprintf("%s: unexpected internal error", id)}
			}
		}()
		return sk.Execute(ctx, input)
	}, true
}

// Cards lists the discovery entries of all registered skills, sorted by id.
func (r *Registry) Cards() []a2a.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]a2a.Skill, 0, len(r.skills))
	for _, sk := range r.skills {
		out = append(out, sk.Card())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
