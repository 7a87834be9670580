package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"github.com/igorsilveira/tokenlens/pkg/store"
)

const weth = "0x4200000000000000000000000000000000000006"

type skillMap map[string]a2a.SkillFunc

func (m skillMap) Lookup(id string) (a2a.SkillFunc, bool) {
	f, ok := m[id]
	return f, ok
}

func baseline(ctx context.Context, input map[string]any) a2a.SkillResult {
	return a2a.SkillResult{Parts: []a2a.Part{
		a2a.TextPart("Risk baseline for WETH on Base: Low (0/100)."),
		a2a.DataPart(map[string]any{"score": 0, "tokenAddress": input["tokenAddress"]}),
	}}
}

func newExecutor(t *testing.T, skills skillMap) (*a2a.Executor, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "tokenlens.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return a2a.NewExecutor(a2a.ExecutorConfig{Store: st, Skills: skills}), st
}

func call(t *testing.T, e *a2a.Executor, method string, params any) a2a.JSONRPCResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	return e.Handle(context.Background(), a2a.JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
}

func sendParams() a2a.SendMessageParams {
	return a2a.SendMessageParams{Message: a2a.Message{
		Role:  a2a.RoleUser,
		Parts: []a2a.Part{a2a.DataPart(map[string]any{"skillId": a2a.SkillRiskBaseline, "tokenAddress": weth, "chain": "Base"})},
	}}
}

func TestExecutorReadsItsOwnWrites(t *testing.T) {
	e, _ := newExecutor(t, skillMap{a2a.SkillRiskBaseline: baseline})

	resp := call(t, e, "SendMessage", sendParams())
	if resp.Error != nil {
		t.Fatalf("SendMessage: %+v", resp.Error)
	}
	sent := resp.Result.(*a2a.Task)
	if sent.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", sent.Status.State)
	}
	if len(sent.Artifacts) != 1 || sent.Artifacts[0].Name != "risk-baseline-result" {
		t.Fatalf("artifacts = %+v", sent.Artifacts)
	}

	resp = call(t, e, "GetTask", map[string]string{"id": sent.ID})
	if resp.Error != nil {
		t.Fatalf("GetTask: %+v", resp.Error)
	}
	sentJSON, _ := json.Marshal(sent)
	gotJSON, _ := json.Marshal(resp.Result)
	if string(sentJSON) != string(gotJSON) {
		t.Errorf("GetTask differs from SendMessage result\nsent: %s\ngot:  %s", sentJSON, gotJSON)
	}
}

func TestExecutorCancelDuringSkillWins(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	slow := func(ctx context.Context, input map[string]any) a2a.SkillResult {
		started <- "running"
		<-release
		return baseline(ctx, input)
	}
	e, st := newExecutor(t, skillMap{a2a.SkillRiskBaseline: slow})

	type outcome struct {
		task *a2a.Task
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		task, err := e.SendMessage(context.Background(), sendParams())
		done <- outcome{task, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("skill never started")
	}

	tasks, err := st.ListTasks(context.Background(), 10, 0)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("ListTasks = %d tasks, %v", len(tasks), err)
	}
	resp := call(t, e, "CancelTask", map[string]string{"id": tasks[0].ID})
	if resp.Error != nil {
		t.Fatalf("CancelTask: %+v", resp.Error)
	}
	close(release)

	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SendMessage did not return")
	}
	if got.err != nil {
		t.Fatal(got.err)
	}
	if got.task.Status.State != a2a.TaskStateCanceled {
		t.Errorf("state = %s, want canceled", got.task.Status.State)
	}
	if len(got.task.Artifacts) != 0 {
		t.Errorf("artifacts = %d, want the late result dropped", len(got.task.Artifacts))
	}

	stored, err := st.GetTask(context.Background(), got.task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status.State != a2a.TaskStateCanceled || len(stored.Artifacts) != 0 {
		t.Errorf("stored task = %s with %d artifacts", stored.Status.State, len(stored.Artifacts))
	}
}

func TestExecutorRejectedRequestsCreateNoTask(t *testing.T) {
	e, st := newExecutor(t, skillMap{a2a.SkillRiskBaseline: baseline})

	resp := call(t, e, "tasks/resubscribe", sendParams())
	if resp.Error == nil || resp.Error.Code != a2a.ErrCodeMethodNotFound {
		t.Fatalf("error = %+v, want -32601", resp.Error)
	}
	resp = call(t, e, "SendMessage", a2a.SendMessageParams{Message: a2a.Message{Role: a2a.RoleUser}})
	if resp.Error == nil || resp.Error.Code != a2a.ErrCodeInvalidParams {
		t.Fatalf("error = %+v, want -32602", resp.Error)
	}

	stats, err := st.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 {
		t.Errorf("total tasks = %d, want 0", stats.Total)
	}
}
