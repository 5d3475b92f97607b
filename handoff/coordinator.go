// Package handoff transfers ownership of conversation threads between agents
// and keeps an append-only audit trail per thread.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hupe1980/brandmesh/auth"
	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/logging"
)

var (
	tracer = otel.Tracer("brandmesh/handoff")
	meter  = otel.GetMeterProvider().Meter("brandmesh/handoff")
)

// Error messages returned in results.
const (
	ErrMsgUnauthorized   = "Unauthorized"
	ErrMsgThreadNotFound = "Thread not found"
	ErrMsgInvalidInput   = "Invalid handoff"
	ErrMsgUnknown        = "Unknown error"
)

// Input requests a handoff.
type Input struct {
	ThreadID  string `json:"threadId"`
	ToAgent   string `json:"toAgent"`
	Reason    string `json:"reason"`
	MessageID string `json:"messageId,omitempty"`
}

// Result is the outcome of HandoffToAgent. Failures never surface as Go
// errors; Error carries one of the ErrMsg constants.
type Result struct {
	Success bool               `json:"success"`
	Handoff *core.AgentHandoff `json:"handoff,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// HistoryResult is the outcome of GetHandoffHistory.
type HistoryResult struct {
	Success  bool                `json:"success"`
	Handoffs []core.AgentHandoff `json:"handoffs,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Options configure a Coordinator.
type Options struct {
	Clock      core.Clock
	Logger     logging.Logger
	MaxRetries int
	RetryDelay time.Duration
}

// Coordinator applies handoffs to thread documents.
type Coordinator struct {
	store docstore.Store
	opts  Options
}

// New creates a Coordinator over store.
func New(store docstore.Store, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Clock:      core.SystemClock{},
		Logger:     logging.NoOpLogger{},
		MaxRetries: 5,
		RetryDelay: 10 * time.Millisecond,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Coordinator{store: store, opts: opts}
}

// ThreadKey addresses a thread document.
func ThreadKey(threadID string) docstore.Key {
	return docstore.Key{Collection: docstore.CollectionThreads, ID: threadID}
}

// CreateThread stores a new thread owned by primary. It fails with
// core.ErrConflict when the thread exists.
func (c *Coordinator) CreateThread(ctx context.Context, brandID, threadID, primary string) (core.Thread, error) {
	if threadID == "" || primary == "" {
		return core.Thread{}, &core.ValidationError{Field: "thread", Message: "id and primary agent are required"}
	}

	thread := core.Thread{
		ID:             threadID,
		BrandID:        brandID,
		PrimaryAgent:   primary,
		AssignedAgents: []string{primary},
	}

	data, err := docstore.Encode(thread)
	if err != nil {
		return core.Thread{}, err
	}

	data["createdAt"] = c.opts.Clock.Now().UTC()
	data["handoffHistory"] = []any{}

	if _, err := c.store.Set(ctx, ThreadKey(threadID), data, docstore.IfAbsent()); err != nil {
		return core.Thread{}, err
	}

	return thread, nil
}

// GetThread reads a thread and its document version.
func (c *Coordinator) GetThread(ctx context.Context, threadID string) (core.Thread, int64, error) {
	doc, err := c.store.Get(ctx, ThreadKey(threadID))
	if err != nil {
		return core.Thread{}, 0, err
	}

	thread, err := decodeThread(threadID, doc.Data)
	if err != nil {
		return core.Thread{}, 0, err
	}

	return thread, doc.Version, nil
}

// HandoffToAgent makes in.ToAgent the thread's primary agent. The primary
// pointer, the assigned set and the history are changed in one version-checked
// update, so concurrent handoffs are serialized instead of overwriting each
// other.
func (c *Coordinator) HandoffToAgent(ctx context.Context, in Input) Result {
	ctx, span := tracer.Start(ctx, "handoff.apply")
	defer span.End()

	principal, err := auth.FromContext(ctx)
	if err != nil {
		return c.fail(ctx, "handoff", ErrMsgUnauthorized, err)
	}

	if strings.TrimSpace(in.ThreadID) == "" || strings.TrimSpace(in.ToAgent) == "" {
		return c.fail(ctx, "handoff", ErrMsgInvalidInput, errors.New("thread id and target agent are required"))
	}

	span.SetAttributes(attribute.String("thread", in.ThreadID), attribute.String("to_agent", in.ToAgent))

	var record core.AgentHandoff

	err = docstore.RetryOnConflict(ctx, c.opts.MaxRetries, c.opts.RetryDelay, func() error {
		thread, version, err := c.GetThread(ctx, in.ThreadID)
		if err != nil {
			return err
		}

		if !principal.CanAccess(thread.BrandID) {
			return auth.ErrUnauthenticated
		}

		record = core.AgentHandoff{
			ID:        core.NewID(),
			FromAgent: thread.PrimaryAgent,
			ToAgent:   in.ToAgent,
			Reason:    in.Reason,
			Timestamp: c.opts.Clock.Now().UTC(),
			MessageID: in.MessageID,
		}

		entry, err := docstore.Encode(record)
		if err != nil {
			return err
		}

		_, err = c.store.Update(ctx, ThreadKey(in.ThreadID), docstore.Update{
			Set: map[string]any{
				"primaryAgent": in.ToAgent,
				"updatedAt":    record.Timestamp,
			},
			ArrayUnion: map[string][]any{
				"assignedAgents": {in.ToAgent},
				"handoffHistory": {entry},
			},
			ExpectedVersion: &version,
		})

		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotFound):
		return c.fail(ctx, "handoff", ErrMsgThreadNotFound, err)
	case errors.Is(err, auth.ErrUnauthenticated):
		return c.fail(ctx, "handoff", ErrMsgUnauthorized, err)
	default:
		span.RecordError(err)
		return c.fail(ctx, "handoff", ErrMsgUnknown, err)
	}

	c.opts.Logger.Info("handoff.applied",
		"thread", in.ThreadID,
		"from", record.FromAgent,
		"to", record.ToAgent,
		"by", principal.Subject,
	)
	count(ctx, "applied")

	return Result{Success: true, Handoff: &record}
}

// GetHandoffHistory returns the thread's handoffs in append order with
// normalized timestamps.
func (c *Coordinator) GetHandoffHistory(ctx context.Context, threadID string) HistoryResult {
	principal, err := auth.FromContext(ctx)
	if err != nil {
		r := c.fail(ctx, "history", ErrMsgUnauthorized, err)
		return HistoryResult{Error: r.Error}
	}

	thread, _, err := c.GetThread(ctx, threadID)

	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotFound):
		return HistoryResult{Error: c.fail(ctx, "history", ErrMsgThreadNotFound, err).Error}
	default:
		return HistoryResult{Error: c.fail(ctx, "history", ErrMsgUnknown, err).Error}
	}

	if !principal.CanAccess(thread.BrandID) {
		return HistoryResult{Error: c.fail(ctx, "history", ErrMsgUnauthorized, auth.ErrUnauthenticated).Error}
	}

	return HistoryResult{Success: true, Handoffs: thread.HandoffHistory}
}

func (c *Coordinator) fail(ctx context.Context, op, msg string, cause error) Result {
	c.opts.Logger.Warn("handoff.failed", "op", op, "error", msg, "cause", cause.Error())
	count(ctx, "failed")

	return Result{Error: msg}
}

func count(ctx context.Context, outcome string) {
	if c, err := meter.Int64Counter("brandmesh.handoff.operations"); err == nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

type storedHandoff struct {
	ID        string `json:"id"`
	FromAgent string `json:"fromAgent"`
	ToAgent   string `json:"toAgent"`
	Reason    string `json:"reason"`
	Timestamp any    `json:"timestamp"`
	MessageID string `json:"messageId,omitempty"`
}

type storedThread struct {
	ID             string          `json:"id"`
	BrandID        string          `json:"brandId"`
	PrimaryAgent   string          `json:"primaryAgent"`
	AssignedAgents []string        `json:"assignedAgents"`
	HandoffHistory []storedHandoff `json:"handoffHistory"`
}

func decodeThread(threadID string, data map[string]any) (core.Thread, error) {
	var st storedThread
	if err := docstore.Decode(data, &st); err != nil {
		return core.Thread{}, err
	}

	thread := core.Thread{
		ID:             threadID,
		BrandID:        st.BrandID,
		PrimaryAgent:   st.PrimaryAgent,
		AssignedAgents: st.AssignedAgents,
	}

	for i, h := range st.HandoffHistory {
		ts, err := NormalizeTimestamp(h.Timestamp)
		if err != nil {
			return core.Thread{}, fmt.Errorf("thread %s handoff %d: %w", threadID, i, err)
		}

		thread.HandoffHistory = append(thread.HandoffHistory, core.AgentHandoff{
			ID:        h.ID,
			FromAgent: h.FromAgent,
			ToAgent:   h.ToAgent,
			Reason:    h.Reason,
			Timestamp: ts,
			MessageID: h.MessageID,
		})
	}

	return thread, nil
}
