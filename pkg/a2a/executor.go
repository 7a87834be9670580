package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/igorsilveira/tokenlens/pkg/audit"
	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	msgNoSkill      = "Could not determine skill from message. Send a data part with skillId or tokenAddress, or mention a token address."
	msgInternal     = "Internal error while processing the request."
	msgRecordFailed = "Failed to record the analysis result."
	msgCompleted    = "Analysis complete."
	msgCanceled     = "Task canceled by request."
)

// TaskStore persists tasks. Implementations must be safe for concurrent use
// and must reject status changes that violate CheckTransition.
type TaskStore interface {
	CreateTask(ctx context.Context, contextID string) (*Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateStatus(ctx context.Context, id string, state TaskState, msg *Message) (*Task, error)
	AddMessage(ctx context.Context, id string, msg Message) (*Task, error)
	AddArtifact(ctx context.Context, id string, artifact Artifact) (*Task, error)
	ListTasks(ctx context.Context, limit, offset int) ([]*Task, error)
	Stats(ctx context.Context) (Stats, error)
}

// SkillResult is what a skill hands back. A non-empty Error marks a request
// that was understood but could not be fulfilled.
type SkillResult struct {
	Parts []Part
	Error string
}

type SkillFunc func(ctx context.Context, input map[string]any) SkillResult

type SkillSet interface {
	Lookup(id string) (SkillFunc, bool)
}

// Publisher receives completed tasks. Publish must not block.
type Publisher interface {
	Publish(task *Task)
}

type Executor struct {
	store     TaskStore
	skills    SkillSet
	publisher Publisher
	auditLog  *audit.Logger
	logger    *slog.Logger
}

type ExecutorConfig struct {
	Store     TaskStore
	Skills    SkillSet
	Publisher Publisher
	AuditLog  *audit.Logger
	Logger    *slog.Logger
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		store:     cfg.Store,
		skills:    cfg.Skills,
		publisher: cfg.Publisher,
		auditLog:  cfg.AuditLog,
		logger:    cfg.Logger,
	}
}

type SendMessageParams struct {
	Message   Message `json:"message"`
	ContextID string  `json:"contextId,omitempty"`
}

type TaskIDParams struct {
	TaskID string `json:"taskId"`
	ID     string `json:"id"`
}

func (p TaskIDParams) id() string {
	if p.TaskID != "" {
		return p.TaskID
	}
	return p.ID
}

type ListTasksParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Handle runs one JSON-RPC request and builds its response envelope.
func (e *Executor) Handle(ctx context.Context, req JSONRPCRequest) JSONRPCResponse {
	start := time.Now()
	method := methodLabel(req.Method)
	outcome := "ok"
	defer func() {
		telemetry.Metrics.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
		telemetry.Metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	result, err := e.dispatch(ctx, req.Method, req.Params)
	if err != nil {
		var rpcErr *JSONRPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = rpcError(ErrCodeInternal, "%s", err.Error())
		}
		outcome = fmt.Sprintf("%d", rpcErr.Code)
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return NewJSONRPCResponse(req.ID, result)
}

var methodLabels = map[string]string{
	"SendMessage":  "SendMessage",
	"message/send": "SendMessage",
	"GetTask":      "GetTask",
	"tasks/get":    "GetTask",
	"ListTasks":    "ListTasks",
	"tasks/list":   "ListTasks",
	"CancelTask":   "CancelTask",
	"tasks/cancel": "CancelTask",
	"GetStats":     "GetStats",
	"tasks/stats":  "GetStats",
}

// methodLabel keeps metric cardinality bounded for arbitrary method names.
func methodLabel(method string) string {
	if l, ok := methodLabels[method]; ok {
		return l
	}
	return "unknown"
}

func (e *Executor) dispatch(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	switch method {
	case "SendMessage", "message/send":
		var params SendMessageParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return e.SendMessage(ctx, params)
	case "GetTask", "tasks/get":
		var params TaskIDParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return e.GetTask(ctx, params.id())
	case "ListTasks", "tasks/list":
		var params ListTasksParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return e.ListTasks(ctx, params.Limit, params.Offset)
	case "CancelTask", "tasks/cancel":
		var params TaskIDParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return e.CancelTask(ctx, params.id())
	case "GetStats", "tasks/stats":
		return e.Stats(ctx)
	default:
		return nil, rpcError(ErrCodeMethodNotFound, "Method not found: %s", method)
	}
}

func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return rpcError(ErrCodeInvalidParams, "Invalid params: %v", err)
	}
	return nil
}

// SendMessage creates a task for the message, runs the matching skill and
// returns the task in whatever state the run left it. Analysis failures are
// reported through the task, not as protocol errors.
func (e *Executor) SendMessage(ctx context.Context, params SendMessageParams) (*Task, error) {
	if len(params.Message.Parts) == 0 {
		return nil, rpcError(ErrCodeInvalidParams, "Invalid params: message must contain at least one part")
	}

	ctx, span := telemetry.StartSpan(ctx, "a2a.SendMessage")
	defer span.End()

	// Persistence continues even if the caller goes away mid-analysis, so
	// the task never stays stuck in working.
	ctx = context.WithoutCancel(ctx)
	ctx = telemetry.EnsureLogger(ctx, e.logger)

	contextID := params.ContextID
	if contextID == "" {
		contextID = params.Message.ContextID
	}

	task, err := e.store.CreateTask(ctx, contextID)
	if err != nil {
		telemetry.Metrics.ErrorsTotal.WithLabelValues("executor").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, rpcError(ErrCodeInternal, "creating task: %v", err)
	}
	span.SetAttributes(attribute.String("task.id", task.ID))
	e.auditLogEvent(ctx, audit.EventA2ATaskNew, task.ID, "")

	msg := params.Message
	if msg.Role == "" {
		msg.Role = RoleUser
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	msg.TaskID = task.ID
	msg.ContextID = task.ContextID

	e.process(ctx, task.ID, msg)

	current, err := e.store.GetTask(ctx, task.ID)
	if err != nil {
		return nil, rpcError(ErrCodeInternal, "reading task %s: %v", task.ID, err)
	}
	span.SetAttributes(attribute.String("task.state", string(current.Status.State)))
	return current, nil
}

func (e *Executor) process(ctx context.Context, taskID string, msg Message) {
	ctx, logger := telemetry.With(ctx, slog.String("task_id", taskID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task pipeline panicked", slog.Any("panic", r))
			telemetry.Metrics.ErrorsTotal.WithLabelValues("executor").Inc()
			e.fail(ctx, msg, "", msgInternal)
		}
	}()

	if _, err := e.store.AddMessage(ctx, taskID, msg); err != nil {
		logger.Error("appending inbound message", slog.String("err", err.Error()))
		e.fail(ctx, msg, "", msgInternal)
		return
	}

	if _, err := e.store.UpdateStatus(ctx, taskID, TaskStateWorking, nil); err != nil {
		if errors.Is(err, ErrTerminalState) {
			logger.Info("task canceled before processing started")
			return
		}
		e.logStoreError(logger, "marking task working", err)
		e.fail(ctx, msg, "", msgInternal)
		return
	}

	inv := ParseMessage(msg)
	if inv.SkillID == "" {
		e.fail(ctx, msg, "", msgNoSkill)
		return
	}
	ctx, logger = telemetry.With(ctx, slog.String("skill", inv.SkillID))

	run, ok := e.skills.Lookup(inv.SkillID)
	if !ok {
		e.fail(ctx, msg, inv.SkillID, fmt.Sprintf("Unknown skill: %s", inv.SkillID))
		return
	}

	result := e.runSkill(ctx, inv, run)
	if result.Error != "" {
		logger.Info("skill returned error", slog.String("error", result.Error))
		e.fail(ctx, msg, inv.SkillID, result.Error)
		return
	}

	artifact := Artifact{
		ArtifactID: uuid.NewString(),
		Name:       inv.SkillID + "-result",
		Parts:      result.Parts,
	}
	if _, err := e.store.AddArtifact(ctx, taskID, artifact); err != nil {
		if errors.Is(err, ErrTerminalState) {
			logger.Warn("task reached a terminal state during execution, dropping result")
			return
		}
		e.logStoreError(logger, "appending artifact", err)
		e.fail(ctx, msg, inv.SkillID, msgRecordFailed)
		return
	}

	reply := replyTo(msg, completionText(result.Parts))
	if _, err := e.store.AddMessage(ctx, taskID, *reply); err != nil && !errors.Is(err, ErrTerminalState) {
		e.logStoreError(logger, "appending agent reply", err)
	}

	task, err := e.store.UpdateStatus(ctx, taskID, TaskStateCompleted, reply)
	if err != nil {
		if errors.Is(err, ErrTerminalState) {
			logger.Warn("task reached a terminal state during execution, keeping it")
			return
		}
		e.logStoreError(logger, "marking task completed", err)
		return
	}

	telemetry.Metrics.TasksTotal.WithLabelValues(string(TaskStateCompleted)).Inc()
	e.auditLogEvent(ctx, audit.EventA2ATaskDone, taskID, inv.SkillID)
	logger.Info("task completed")
	e.publish(logger, task)
}

func (e *Executor) runSkill(ctx context.Context, inv Invocation, run SkillFunc) (result SkillResult) {
	ctx, span := telemetry.StartSpan(ctx, "skill.execute", attribute.String("skill.id", inv.SkillID))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = SkillResult{Error: fmt.Sprintf("%s: internal error", inv.SkillID)}
		}
		status := "ok"
		if result.Error != "" {
			status = "error"
			span.SetStatus(codes.Error, result.Error)
		}
		telemetry.Metrics.SkillExecutions.WithLabelValues(inv.SkillID, status).Inc()
		telemetry.Metrics.SkillDuration.WithLabelValues(inv.SkillID).Observe(time.Since(start).Seconds())
		span.End()
	}()

	return run(ctx, inv.Input)
}

// replyTo builds the agent message answering in, on the same task and
// context.
func replyTo(in Message, text string) *Message {
	reply := AgentText(text)
	reply.MessageID = uuid.NewString()
	reply.TaskID = in.TaskID
	reply.ContextID = in.ContextID
	return reply
}

// fail records text as the agent's reply to msg and marks its task failed.
func (e *Executor) fail(ctx context.Context, msg Message, skillID, text string) {
	logger := telemetry.FromContext(ctx)
	taskID := msg.TaskID

	reply := replyTo(msg, text)
	if _, err := e.store.AddMessage(ctx, taskID, *reply); err != nil && !errors.Is(err, ErrTerminalState) {
		e.logStoreError(logger, "appending failure message", err)
	}

	if _, err := e.store.UpdateStatus(ctx, taskID, TaskStateFailed, reply); err != nil {
		if errors.Is(err, ErrTerminalState) {
			logger.Warn("task already terminal, failure not recorded", slog.String("reason", text))
			return
		}
		e.logStoreError(logger, "marking task failed", err)
		return
	}

	telemetry.Metrics.TasksTotal.WithLabelValues(string(TaskStateFailed)).Inc()
	e.auditLogEvent(ctx, audit.EventA2ATaskFail, taskID, fmt.Sprintf("skill=%s reason=%s", skillID, text))
}

func (e *Executor) publish(logger *slog.Logger, task *Task) {
	if e.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("publisher panicked", slog.Any("panic", r))
			telemetry.Metrics.ErrorsTotal.WithLabelValues("notify").Inc()
		}
	}()
	e.publisher.Publish(task)
}

// logStoreError records a store failure inside the pipeline. A missing task
// at this point means the executor lost track of its own write.
func (e *Executor) logStoreError(logger *slog.Logger, op string, err error) {
	telemetry.Metrics.ErrorsTotal.WithLabelValues("store").Inc()
	if errors.Is(err, ErrTaskNotFound) {
		logger.Error("task vanished during processing", slog.String("op", op))
		return
	}
	logger.Error("store operation failed", slog.String("op", op), slog.String("err", err.Error()))
}

func (e *Executor) GetTask(ctx context.Context, id string) (*Task, error) {
	if id == "" {
		return nil, rpcError(ErrCodeTaskNotFound, "Task not found")
	}
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, rpcError(ErrCodeTaskNotFound, "Task not found")
		}
		return nil, rpcError(ErrCodeInternal, "reading task: %v", err)
	}
	return task, nil
}

func (e *Executor) ListTasks(ctx context.Context, limit, offset int) ([]*Task, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	tasks, err := e.store.ListTasks(ctx, limit, offset)
	if err != nil {
		return nil, rpcError(ErrCodeInternal, "listing tasks: %v", err)
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	return tasks, nil
}

func (e *Executor) CancelTask(ctx context.Context, id string) (*Task, error) {
	task, err := e.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.State.Terminal() {
		return nil, rpcError(ErrCodeTaskNotCancelable, "Task is in a terminal state")
	}

	reply := replyTo(Message{TaskID: id, ContextID: task.ContextID}, msgCanceled)
	canceled, err := e.store.UpdateStatus(ctx, id, TaskStateCanceled, reply)
	if err != nil {
		switch {
		case errors.Is(err, ErrTerminalState):
			return nil, rpcError(ErrCodeTaskNotCancelable, "Task is in a terminal state")
		case errors.Is(err, ErrTaskNotFound):
			return nil, rpcError(ErrCodeTaskNotFound, "Task not found")
		}
		return nil, rpcError(ErrCodeInternal, "canceling task: %v", err)
	}

	telemetry.Metrics.TasksTotal.WithLabelValues(string(TaskStateCanceled)).Inc()
	e.auditLogEvent(ctx, audit.EventA2ATaskCancel, id, "")
	return canceled, nil
}

func (e *Executor) Stats(ctx context.Context) (Stats, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return Stats{}, rpcError(ErrCodeInternal, "reading stats: %v", err)
	}
	return stats, nil
}

func (e *Executor) auditLogEvent(ctx context.Context, eventType, taskID, detail string) {
	if e.auditLog == nil {
		return
	}
	if err := e.auditLog.Log(ctx, eventType, taskID, "a2a", detail); err != nil {
		telemetry.FromContext(telemetry.EnsureLogger(ctx, e.logger)).Warn("audit log write failed", slog.String("event", eventType), slog.String("err", err.Error()))
	}
}

func completionText(parts []Part) string {
	for _, p := range parts {
		if p.Type == PartTypeText && p.Text != "" {
			return p.Text
		}
	}
	return msgCompleted
}
