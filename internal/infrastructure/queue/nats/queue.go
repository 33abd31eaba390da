package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/infrastructure/resilience"
)

const (
	DefaultSyncSubject   = "archive.sync.requested"
	DefaultEventsSubject = "archive.batch.completed"
)

// Queue carries sync requests in and batch-completed events out.
type Queue struct {
	conn          *nats.Conn
	syncSubject   string
	eventsSubject string
	executor      *resilience.Executor
	logger        *slog.Logger
}

type Options struct {
	SyncSubject          string
	EventsSubject        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("records-archive"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:          conn,
		syncSubject:   firstNonEmpty(options.SyncSubject, DefaultSyncSubject),
		eventsSubject: firstNonEmpty(options.EventsSubject, DefaultEventsSubject),
		executor:      options.ResilienceExecutor,
		logger:        logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// RequestSync asks a subscribed worker to sync the named root.
func (q *Queue) RequestSync(ctx context.Context, root string) error {
	return q.publish(ctx, "nats.publish_sync", q.syncSubject, []byte(root))
}

func (q *Queue) PublishBatchCompleted(ctx context.Context, report domain.BatchReport) error {
	payload, err := encodeBatchEvent(report)
	if err != nil {
		return err
	}
	return q.publish(ctx, "nats.publish_batch", q.eventsSubject, payload)
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeSyncRequested blocks until ctx is done. Requests are handled one at
// a time by the queue group, so only one worker picks each request up.
func (q *Queue) SubscribeSyncRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.syncSubject, "archive-workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		root := strings.TrimSpace(string(msg.Data))
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, root); err != nil {
			q.logger.Error("sync_request_failed", "root", root, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type batchEvent struct {
	Root       string    `json:"root"`
	Added      int       `json:"added"`
	Modified   int       `json:"modified"`
	Deleted    int       `json:"deleted"`
	Degraded   int       `json:"degraded"`
	Failed     int       `json:"failed"`
	Cancelled  bool      `json:"cancelled,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func encodeBatchEvent(report domain.BatchReport) ([]byte, error) {
	payload, err := json.Marshal(batchEvent{
		Root:       report.Root,
		Added:      report.Added,
		Modified:   report.Modified,
		Deleted:    report.Deleted,
		Degraded:   report.Degraded,
		Failed:     len(report.Failed),
		Cancelled:  report.Cancelled,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal batch event: %w", err)
	}
	return payload, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
