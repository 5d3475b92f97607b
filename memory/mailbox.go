package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
)

// ErrRateLimited is returned when a brand exceeds its message-rate constraint.
var ErrRateLimited = errors.New("message rate limit exceeded")

// Message is an inter-agent message.
type Message struct {
	ID      string    `json:"id"`
	BrandID string    `json:"brand_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Subject string    `json:"subject,omitempty"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Mailbox delivers messages between agents of a brand and enforces the
// brand's MaxMessagesPerHour constraint with a token bucket per brand.
type Mailbox struct {
	store docstore.Store
	clock core.Clock

	mu       sync.Mutex
	limiters map[string]*brandLimiter
}

type brandLimiter struct {
	perHour int
	limiter *rate.Limiter
}

// NewMailbox creates a mailbox. A nil clock defaults to SystemClock.
func NewMailbox(store docstore.Store, clock core.Clock) *Mailbox {
	if clock == nil {
		clock = core.SystemClock{}
	}

	return &Mailbox{store: store, clock: clock, limiters: make(map[string]*brandLimiter)}
}

func mailboxKey(brandID, agent string) docstore.Key {
	return docstore.Key{Collection: docstore.CollectionMailboxes, ID: brandID + ":" + agent}
}

// Send delivers msg. maxPerHour is the brand constraint; nil means unlimited.
func (m *Mailbox) Send(ctx context.Context, msg Message, maxPerHour *int) (Message, error) {
	if msg.BrandID == "" || msg.To == "" || msg.Body == "" {
		return Message{}, &core.ValidationError{Field: "message", Message: "brand_id, to and body are required"}
	}

	now := m.clock.Now()
	if !m.allow(msg.BrandID, maxPerHour, now) {
		return Message{}, fmt.Errorf("%w: brand %s allows %d per hour", ErrRateLimited, msg.BrandID, *maxPerHour)
	}

	if msg.ID == "" {
		msg.ID = core.NewID()
	}

	msg.SentAt = now
	if err := appendToArray(ctx, m.store, mailboxKey(msg.BrandID, msg.To), "messages", msg); err != nil {
		return Message{}, err
	}

	return msg, nil
}

// Inbox returns the agent's messages in delivery order.
func (m *Mailbox) Inbox(ctx context.Context, brandID, agent string) ([]Message, error) {
	doc, err := m.store.Get(ctx, mailboxKey(brandID, agent))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var out struct {
		Messages []Message `json:"messages"`
	}

	if err := docstore.Decode(doc.Data, &out); err != nil {
		return nil, err
	}

	return out.Messages, nil
}

func (m *Mailbox) allow(brandID string, maxPerHour *int, now time.Time) bool {
	if maxPerHour == nil {
		return true
	}

	if *maxPerHour <= 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bl, ok := m.limiters[brandID]
	if !ok || bl.perHour != *maxPerHour {
		bl = &brandLimiter{
			perHour: *maxPerHour,
			limiter: rate.NewLimiter(rate.Limit(float64(*maxPerHour)/3600.0), *maxPerHour),
		}

		m.limiters[brandID] = bl
	}

	return bl.limiter.AllowN(now, 1)
}
