package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"github.com/igorsilveira/tokenlens/pkg/audit"
	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

const DefaultQueueSize = 64

type DispatcherConfig struct {
	Notifier  Notifier
	QueueSize int
	Timeout   time.Duration
	// Skills limits notifications to tasks produced by these skills. Empty
	// means every completed task is published.
	Skills   []string
	AuditLog *audit.Logger
	Logger   *slog.Logger
}

// Dispatcher publishes completed tasks in the background. Publish never
// blocks: a full queue drops the notification. It satisfies a2a.Publisher.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	skills   map[string]bool
	auditLog *audit.Logger
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *a2a.Task
	done   chan struct{}
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Notifier == nil {
		cfg.Notifier = Noop{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		notifier: cfg.Notifier,
		timeout:  cfg.Timeout,
		auditLog: cfg.AuditLog,
		logger:   cfg.Logger.With(slog.String("component", "notify"), slog.String("notifier", cfg.Notifier.Name())),
		queue:    make(chan *a2a.Task, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	if len(cfg.Skills) > 0 {
		d.skills = make(map[string]bool, len(cfg.Skills))
		for _, s := range cfg.Skills {
			d.skills[s] = true
		}
	}

	go d.run()
	return d
}

// Name reports the notifier deliveries go to.
func (d *Dispatcher) Name() string { return d.notifier.Name() }

func (d *Dispatcher) Publish(task *a2a.Task) {
	if task == nil {
		return
	}
	if d.skills != nil && !d.skills[SkillOf(task)] {
		telemetry.Metrics.Notifications.WithLabelValues("filtered").Inc()
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		telemetry.Metrics.Notifications.WithLabelValues("dropped").Inc()
		d.logger.Warn("dispatcher closed, dropping notification", slog.String("task_id", task.ID))
		return
	}

	select {
	case d.queue <- task:
		telemetry.Metrics.NotifyQueueDepth.Set(float64(len(d.queue)))
	default:
		telemetry.Metrics.Notifications.WithLabelValues("dropped").Inc()
		d.logger.Warn("notification queue full, dropping", slog.String("task_id", task.ID))
	}
}

// Close stops accepting tasks and waits for queued ones to be delivered,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for task := range d.queue {
		telemetry.Metrics.NotifyQueueDepth.Set(float64(len(d.queue)))
		d.deliver(task)
	}
}

func (d *Dispatcher) deliver(task *a2a.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	logger := d.logger.With(slog.String("task_id", task.ID))
	err := d.safeNotify(ctx, task)
	if err != nil {
		telemetry.Metrics.Notifications.WithLabelValues("failed").Inc()
		telemetry.Metrics.ErrorsTotal.WithLabelValues("notify").Inc()
		logger.Warn("notification failed", slog.String("err", err.Error()))
		d.audit(ctx, audit.EventNotifyFail, task.ID, map[string]string{"notifier": d.notifier.Name(), "error": err.Error()})
		return
	}

	telemetry.Metrics.Notifications.WithLabelValues("sent").Inc()
	logger.Debug("notification sent")
	d.audit(ctx, audit.EventNotifySend, task.ID, map[string]string{"notifier": d.notifier.Name()})
}

func (d *Dispatcher) safeNotify(ctx context.Context, task *a2a.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panicked: %v", r)
		}
	}()
	return d.notifier.Notify(ctx, task)
}

func (d *Dispatcher) audit(ctx context.Context, event, taskID string, detail any) {
	if d.auditLog == nil {
		return
	}
	// The delivery context may have expired; the audit write gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.auditLog.Log(ctx, event, taskID, "notify", detail); err != nil {
		d.logger.Warn("audit log write failed", slog.String("err", err.Error()))
	}
}
