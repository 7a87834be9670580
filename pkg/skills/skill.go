package skills

import (
	"context"
	"fmt"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
)

// Skill is an independently invocable capability. Execute never panics
// and never returns a Go error; failures land in SkillResult.Error.
type Skill interface {
	Card() a2a.Skill
	Execute(ctx context.Context, input map[string]any) a2a.SkillResult
}

func errorResult(format string, args ...any) a2a.SkillResult {
	return a2a.SkillResult{Error: fmt.Sprintf(format, args...)}
}
