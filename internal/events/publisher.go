// Package events publishes parse progress notifications on NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/pipeline"
	"github.com/ppiankov/coursework/internal/resilience"
)

// DefaultSubject is the subject prefix used when none is configured
const DefaultSubject = "coursework.parse"

// Publisher sends every progress notification to
// <subject>.<parse id>.<stage>
type Publisher struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *zap.Logger
}

// Options tune the connection
type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	Executor       *resilience.Executor
	Logger         *zap.Logger
}

// Connect dials url and returns a publisher for subject
func Connect(url, subject string, opts Options) (*Publisher, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 60
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("coursework"),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, model.WrapError(model.ErrCollaborator, "connect nats", err)
	}
	return NewPublisher(conn, subject, opts.Executor, logger), nil
}

// NewPublisher wraps an existing connection
func NewPublisher(conn *nats.Conn, subject string, executor *resilience.Executor, logger *zap.Logger) *Publisher {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, subject: subject, executor: executor, logger: logger}
}

// Subject returns the subject a notification is published on
func (p *Publisher) Subject(ev pipeline.Progress) string {
	return fmt.Sprintf("%s.%s.%s", p.subject, ev.ParseID, ev.Stage)
}

// Publish implements pipeline.Publisher
func (p *Publisher) Publish(ctx context.Context, ev pipeline.Progress) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	subject := p.Subject(ev)

	call := func(context.Context) error {
		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	p.logger.Debug("progress published", zap.String("subject", subject))
	return nil
}

// Flush waits until the server has processed every published message
func (p *Publisher) Flush(timeout time.Duration) error {
	return p.conn.FlushTimeout(timeout)
}

// Close drains and closes the connection
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func wrapTemporaryIfNeeded(err error) error {
	if model.IsKind(err, model.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return model.WrapError(model.ErrTemporary, "nats publish", err)
	}
	return model.WrapError(model.ErrCollaborator, "nats publish", err)
}
