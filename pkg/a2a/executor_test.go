package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const evmAddr = "0x1234567890123456789012345678901234567890"

func newTestExecutor(skills fakeSkills, pub Publisher) (*Executor, *memStore) {
	st := newMemStore()
	return NewExecutor(ExecutorConfig{Store: st, Skills: skills, Publisher: pub}), st
}

func rpc(t *testing.T, e *Executor, method string, params any) JSONRPCResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	return e.Handle(context.Background(), JSONRPCRequest{JSONRPC: "2.0", ID: 7, Method: method, Params: raw})
}

func dataMessage(payload map[string]any) Message {
	return Message{Role: RoleUser, Parts: []Part{DataPart(payload)}}
}

func textMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

func TestSendMessage_Completed(t *testing.T) {
	pub := &recordingPublisher{}
	e, _ := newTestExecutor(fakeSkills{SkillRiskBaseline: okSkill("Risk: Low")}, pub)

	task, err := e.SendMessage(context.Background(), SendMessageParams{
		Message: dataMessage(map[string]any{"skillId": SkillRiskBaseline, "input": map[string]any{"tokenAddress": evmAddr, "chain": "Base"}}),
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if task.Status.State != TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}
	if task.Status.Message == nil || task.Status.Message.Parts[0].Text != "Risk: Low" {
		t.Errorf("status message = %+v", task.Status.Message)
	}
	if len(task.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(task.Artifacts))
	}
	a := task.Artifacts[0]
	if a.Name != "risk-baseline-result" || a.ArtifactID == "" || len(a.Parts) != 2 {
		t.Errorf("artifact = %+v", a)
	}
	if a.Parts[1].Data["echo"] != evmAddr {
		t.Errorf("skill input not passed through: %v", a.Parts[1].Data)
	}

	if len(task.Messages) != 2 {
		t.Fatalf("messages = %d, want user + agent", len(task.Messages))
	}
	if task.Messages[0].Role != RoleUser || task.Messages[0].MessageID == "" || task.Messages[0].TaskID != task.ID {
		t.Errorf("user message = %+v", task.Messages[0])
	}
	if task.Messages[1].Role != RoleAgent {
		t.Errorf("reply role = %q", task.Messages[1].Role)
	}
	if pub.count() != 1 {
		t.Errorf("published %d tasks, want 1", pub.count())
	}
}

func TestSendMessage_EmptyPartsCreatesNoTask(t *testing.T) {
	e, st := newTestExecutor(fakeSkills{}, nil)

	resp := rpc(t, e, "SendMessage", SendMessageParams{Message: Message{Role: RoleUser, Parts: []Part{}}})
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidParams {
		t.Fatalf("error = %+v, want -32602", resp.Error)
	}
	stats, _ := st.Stats(context.Background())
	if stats.Total != 0 {
		t.Errorf("total tasks = %d, want 0", stats.Total)
	}
}

func TestSendMessage_ContextID(t *testing.T) {
	e, _ := newTestExecutor(fakeSkills{SkillRiskBaseline: okSkill("ok")}, nil)

	task, err := e.SendMessage(context.Background(), SendMessageParams{
		Message:   dataMessage(map[string]any{"tokenAddress": evmAddr}),
		ContextID: "ctx-42",
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.ContextID != "ctx-42" {
		t.Errorf("ContextID = %q, want ctx-42", task.ContextID)
	}
	if m := task.Status.Message; m == nil || m.ContextID != "ctx-42" {
		t.Errorf("reply = %+v, want context ctx-42", m)
	}
}

func TestSendMessage_Failures(t *testing.T) {
	boom := func(ctx context.Context, input map[string]any) SkillResult { panic("boom") }

	tests := []struct {
		name     string
		skills   fakeSkills
		msg      Message
		wantText string
	}{
		{"unparseable", fakeSkills{}, textMessage("hello there"), msgNoSkill},
		{"skill error", fakeSkills{SkillRiskBaseline: errSkill("unsupported chain")}, dataMessage(map[string]any{"tokenAddress": evmAddr, "chain": "Tron"}), "unsupported chain"},
		{"unknown skill", fakeSkills{}, dataMessage(map[string]any{"skillId": "price-oracle"}), "Unknown skill: price-oracle"},
		{"skill panic", fakeSkills{SkillTokenHealthCheck: boom}, textMessage("is " + evmAddr + " safe?"), "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			e, _ := newTestExecutor(tt.skills, pub)

			task, err := e.SendMessage(context.Background(), SendMessageParams{Message: tt.msg, ContextID: "ctx-fail"})
			if err != nil {
				t.Fatalf("SendMessage must return the task, got error %v", err)
			}
			if task.Status.State != TaskStateFailed {
				t.Fatalf("state = %s, want failed", task.Status.State)
			}
			if task.Status.Message == nil || !strings.Contains(task.Status.Message.Parts[0].Text, tt.wantText) {
				t.Errorf("status message = %+v, want %q", task.Status.Message, tt.wantText)
			}
			if m := task.Status.Message; m != nil && (m.ContextID != "ctx-fail" || m.TaskID != task.ID) {
				t.Errorf("failure reply ids = %q/%q, want task and context of the request", m.TaskID, m.ContextID)
			}
			if len(task.Artifacts) != 0 {
				t.Error("failed task should have no artifacts")
			}
			if pub.count() != 0 {
				t.Error("failed task must not be published")
			}
		})
	}
}

func TestSendMessage_DefaultCompletionText(t *testing.T) {
	dataOnly := func(ctx context.Context, input map[string]any) SkillResult {
		return SkillResult{Parts: []Part{DataPart(map[string]any{"score": 1})}}
	}
	e, _ := newTestExecutor(fakeSkills{SkillRiskBaseline: dataOnly}, nil)

	task, _ := e.SendMessage(context.Background(), SendMessageParams{Message: dataMessage(map[string]any{"tokenAddress": evmAddr})})
	if got := task.Status.Message.Parts[0].Text; got != msgCompleted {
		t.Errorf("status text = %q, want %q", got, msgCompleted)
	}
}

func TestSendMessage_PublisherPanicDoesNotAffectResponse(t *testing.T) {
	e, _ := newTestExecutor(fakeSkills{SkillRiskBaseline: okSkill("ok")}, panicPublisher{})

	task, err := e.SendMessage(context.Background(), SendMessageParams{Message: dataMessage(map[string]any{"tokenAddress": evmAddr})})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status.State != TaskStateCompleted {
		t.Errorf("state = %s, want completed", task.Status.State)
	}
}

func TestSendMessage_CanceledDuringExecution(t *testing.T) {
	pub := &recordingPublisher{}
	e, st := newTestExecutor(fakeSkills{SkillRiskBaseline: okSkill("ok")}, pub)

	st.beforeUpdate = func(id string, to TaskState) {
		if to == TaskStateCompleted {
			st.beforeUpdate = nil
			if _, err := st.UpdateStatus(context.Background(), id, TaskStateCanceled, nil); err != nil {
				t.Errorf("cancel: %v", err)
			}
		}
	}

	task, err := e.SendMessage(context.Background(), SendMessageParams{Message: dataMessage(map[string]any{"tokenAddress": evmAddr})})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status.State != TaskStateCanceled {
		t.Errorf("state = %s, want canceled to win", task.Status.State)
	}
	if pub.count() != 0 {
		t.Error("canceled task must not be published")
	}
}

func TestSendMessage_CallerCancellationStillPersists(t *testing.T) {
	e, _ := newTestExecutor(fakeSkills{SkillRiskBaseline: func(ctx context.Context, _ map[string]any) SkillResult {
		if ctx.Err() != nil {
			return SkillResult{Error: "context canceled"}
		}
		return SkillResult{Parts: []Part{TextPart("done")}}
	}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task, err := e.SendMessage(ctx, SendMessageParams{Message: dataMessage(map[string]any{"tokenAddress": evmAddr})})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status.State != TaskStateCompleted {
		t.Errorf("state = %s, want completed", task.Status.State)
	}
}

func TestSendMessage_CreateFails(t *testing.T) {
	e, st := newTestExecutor(fakeSkills{}, nil)
	st.failCreate = errors.New("disk full")

	resp := rpc(t, e, "message/send", SendMessageParams{Message: textMessage("hi")})
	if resp.Error == nil || resp.Error.Code != ErrCodeInternal {
		t.Fatalf("error = %+v, want -32603", resp.Error)
	}
}

func TestHandle_GetTask(t *testing.T) {
	e, st := newTestExecutor(fakeSkills{}, nil)
	created, _ := st.CreateTask(context.Background(), "")

	for _, method := range []string{"GetTask", "tasks/get"} {
		resp := rpc(t, e, method, map[string]string{"id": created.ID})
		if resp.Error != nil {
			t.Fatalf("%s: %+v", method, resp.Error)
		}
		if got := resp.Result.(*Task); got.ID != created.ID {
			t.Errorf("%s: ID = %q", method, got.ID)
		}
	}

	resp := rpc(t, e, "GetTask", map[string]string{"taskId": created.ID})
	if resp.Error != nil {
		t.Errorf("taskId param: %+v", resp.Error)
	}
}

func TestHandle_GetTaskNotFound(t *testing.T) {
	e, _ := newTestExecutor(fakeSkills{}, nil)

	for _, params := range []any{map[string]string{"id": "missing"}, map[string]string{}} {
		resp := rpc(t, e, "GetTask", params)
		if resp.Error == nil || resp.Error.Code != ErrCodeTaskNotFound {
			t.Errorf("params %v: error = %+v, want -32001", params, resp.Error)
		}
	}
}

func TestHandle_ListTasks(t *testing.T) {
	e, st := newTestExecutor(fakeSkills{}, nil)
	var ids []string
	for i := 0; i < 5; i++ {
		task, _ := st.CreateTask(context.Background(), "")
		ids = append(ids, task.ID)
	}

	resp := rpc(t, e, "tasks/list", ListTasksParams{Limit: 2, Offset: 1})
	tasks := resp.Result.([]*Task)
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2", len(tasks))
	}
	if tasks[0].ID != ids[3] || tasks[1].ID != ids[2] {
		t.Error("expected newest-first order after offset")
	}

	resp = rpc(t, e, "ListTasks", nil)
	if got := len(resp.Result.([]*Task)); got != 5 {
		t.Errorf("default list len = %d, want 5", got)
	}
}

func TestListTasks_Clamps(t *testing.T) {
	var seen []int
	e := NewExecutor(ExecutorConfig{Store: &limitSpy{memStore: newMemStore(), seen: &seen}})

	_, _ = e.ListTasks(context.Background(), 0, -3)
	_, _ = e.ListTasks(context.Background(), 10_000, 0)
	if seen[0] != defaultListLimit || seen[1] != 0 {
		t.Errorf("defaults = %v", seen[:2])
	}
	if seen[2] != maxListLimit {
		t.Errorf("cap = %d, want %d", seen[2], maxListLimit)
	}
}

type limitSpy struct {
	*memStore
	seen *[]int
}

func (l *limitSpy) ListTasks(ctx context.Context, limit, offset int) ([]*Task, error) {
	*l.seen = append(*l.seen, limit, offset)
	return l.memStore.ListTasks(ctx, limit, offset)
}

func TestHandle_CancelTask(t *testing.T) {
	e, st := newTestExecutor(fakeSkills{}, nil)
	task, _ := st.CreateTask(context.Background(), "")

	resp := rpc(t, e, "CancelTask", map[string]string{"id": task.ID})
	if resp.Error != nil {
		t.Fatalf("cancel: %+v", resp.Error)
	}
	canceled := resp.Result.(*Task)
	if canceled.Status.State != TaskStateCanceled {
		t.Errorf("state = %s", canceled.Status.State)
	}
	if canceled.Status.Message == nil || canceled.Status.Message.Parts[0].Text != msgCanceled {
		t.Errorf("status message = %+v", canceled.Status.Message)
	}

	resp = rpc(t, e, "tasks/cancel", map[string]string{"id": task.ID})
	if resp.Error == nil || resp.Error.Code != ErrCodeTaskNotCancelable {
		t.Errorf("second cancel error = %+v, want -32002", resp.Error)
	}

	resp = rpc(t, e, "CancelTask", map[string]string{"id": "nope"})
	if resp.Error == nil || resp.Error.Code != ErrCodeTaskNotFound {
		t.Errorf("missing cancel error = %+v, want -32001", resp.Error)
	}
}

func TestHandle_CancelCompletedTask(t *testing.T) {
	e, _ := newTestExecutor(fakeSkills{SkillRiskBaseline: okSkill("ok")}, nil)
	task, _ := e.SendMessage(context.Background(), SendMessageParams{Message: dataMessage(map[string]any{"tokenAddress": evmAddr})})

	resp := rpc(t, e, "CancelTask", map[string]string{"id": task.ID})
	if resp.Error == nil || resp.Error.Code != ErrCodeTaskNotCancelable {
		t.Fatalf("error = %+v, want -32002", resp.Error)
	}
	got, _ := e.GetTask(context.Background(), task.ID)
	if got.Status.State != TaskStateCompleted {
		t.Errorf("state = %s, want completed unchanged", got.Status.State)
	}
}

func TestHandle_Stats(t *testing.T) {
	e, _ := newTestExecutor(fakeSkills{SkillRiskBaseline: okSkill("ok")}, nil)
	_, _ = e.SendMessage(context.Background(), SendMessageParams{Message: dataMessage(map[string]any{"tokenAddress": evmAddr})})
	_, _ = e.SendMessage(context.Background(), SendMessageParams{Message: textMessage("nothing here")})

	resp := rpc(t, e, "tasks/stats", nil)
	stats := resp.Result.(Stats)
	if stats.Total != 2 || stats.Completed != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandle_MethodNotFound(t *testing.T) {
	e, st := newTestExecutor(fakeSkills{SkillRiskBaseline: okSkill("ok")}, nil)
	for _, method := range []string{"tasks/resubscribe", "message/stream"} {
		resp := rpc(t, e, method, SendMessageParams{Message: dataMessage(map[string]any{"tokenAddress": evmAddr})})
		if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
			t.Fatalf("%s: error = %+v, want -32601", method, resp.Error)
		}
		if resp.ID != 7 {
			t.Errorf("ID = %v, want echoed 7", resp.ID)
		}
	}
	stats, _ := st.Stats(context.Background())
	if stats.Total != 0 {
		t.Errorf("total tasks = %d, want none created", stats.Total)
	}
}

func TestHandle_InvalidParams(t *testing.T) {
	e, _ := newTestExecutor(fakeSkills{}, nil)
	resp := e.Handle(context.Background(), JSONRPCRequest{JSONRPC: "2.0", ID: "a", Method: "GetTask", Params: json.RawMessage(`"not-an-object"`)})
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidParams {
		t.Fatalf("error = %+v, want -32602", resp.Error)
	}
}

func TestMethodLabel(t *testing.T) {
	if methodLabel("message/send") != "SendMessage" {
		t.Error("alias should share the canonical label")
	}
	if methodLabel("whatever/"+strings.Repeat("x", 50)) != "unknown" {
		t.Error("unknown methods should collapse to one label")
	}
}
