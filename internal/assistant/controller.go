package assistant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/google/uuid"
)

// DefaultReplyDelay is the simulated time the assistant spends "typing".
const DefaultReplyDelay = 1500 * time.Millisecond

const inboxSize = 64

// ErrSessionClosed is returned when an action is sent to a closed controller.
var ErrSessionClosed = errors.New("chat session closed")

// EventType categorizes controller events.
type EventType string

const (
	EventMessage EventType = "message"
	EventTyping  EventType = "typing"
)

// Event is published to subscribers when the transcript or typing indicator changes.
type Event struct {
	Type    EventType           `json:"type"`
	Message *domain.ChatMessage `json:"message,omitempty"`
	Typing  bool                `json:"typing"`
}

// Result is the outcome of a processed action. User is nil for quote submissions.
type Result struct {
	User  *domain.ChatMessage `json:"user_message,omitempty"`
	Reply domain.ChatMessage  `json:"reply"`
}

// Pending is an action that has been queued on a controller.
// Abandoning the wait does not cancel the action.
type Pending struct {
	done   chan struct{}
	result Result
	err    error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(r Result, err error) {
	p.result = r
	p.err = err
	close(p.done)
}

// Done is closed once the action has been processed.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the action has been processed or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Observer is notified after every message appended to a session.
type Observer func(s Session, msg domain.ChatMessage)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	ReplyDelay time.Duration
	Assembler  QuoteAssembler
	Observer   Observer
	Logger     *slog.Logger
	NewID      func() string
	Now        func() time.Time
}

type actionKind int

const (
	actionText actionKind = iota
	actionQuote
)

type action struct {
	kind    actionKind
	text    string
	profile domain.ClientProfile
	pending *Pending
}

// Controller owns one chat session and processes its actions one at a time.
type Controller struct {
	id  string
	cfg ControllerConfig

	sendMu sync.RWMutex
	closed bool
	inbox  chan action

	mu         sync.RWMutex
	session    Session
	typing     bool
	lastActive time.Time
	subs       map[int64]chan Event
	nextSub    int64

	stopped chan struct{}
}

// NewController starts the controller for session id.
func NewController(id string, cfg ControllerConfig) *Controller {
	if cfg.NewID == nil {
		cfg.NewID = newMessageID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReplyDelay < 0 {
		cfg.ReplyDelay = 0
	}

	c := &Controller{
		id:      id,
		cfg:     cfg,
		inbox:   make(chan action, inboxSize),
		subs:    make(map[int64]chan Event),
		stopped: make(chan struct{}),
	}
	c.session = NewSession(id, c.stamp())
	c.lastActive = c.cfg.Now()

	go c.run()
	return c
}

func newMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (c *Controller) stamp() Stamp {
	return Stamp{ID: c.cfg.NewID(), At: c.cfg.Now()}
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// Send queues a user message.
func (c *Controller) Send(ctx context.Context, text string) (*Pending, error) {
	return c.enqueue(ctx, action{kind: actionText, text: text})
}

// SubmitQuote queues a quote form submission.
func (c *Controller) SubmitQuote(ctx context.Context, profile domain.ClientProfile) (*Pending, error) {
	return c.enqueue(ctx, action{kind: actionQuote, profile: profile})
}

func (c *Controller) enqueue(ctx context.Context, a action) (*Pending, error) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return nil, ErrSessionClosed
	}

	a.pending = newPending()
	select {
	case c.inbox <- a:
		c.touch()
		return a.pending, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.session
	s.Messages = make([]domain.ChatMessage, len(c.session.Messages))
	for i, m := range c.session.Messages {
		s.Messages[i] = m.Clone()
	}
	return s
}

// Typing reports whether a reply is currently being prepared.
func (c *Controller) Typing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typing
}

// LastActive returns the time of the last queued or processed action.
func (c *Controller) LastActive() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActive
}

func (c *Controller) touch() {
	c.mu.Lock()
	c.lastActive = c.cfg.Now()
	c.mu.Unlock()
}

// Subscribe registers for controller events. The channel is closed on unsubscribe
// or when the controller stops. Events are dropped for subscribers that fall behind.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	c.mu.Lock()
	select {
	case <-c.stopped:
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops accepting actions. Actions already queued still complete.
func (c *Controller) Close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.inbox)
}

// Done is closed after the controller has processed its last action.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

func (c *Controller) run() {
	defer c.stop()
	for a := range c.inbox {
		switch a.kind {
		case actionText:
			c.handleText(a)
		case actionQuote:
			c.handleQuote(a)
		}
	}
}

func (c *Controller) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	close(c.stopped)
}

func (c *Controller) handleText(a action) {
	c.mu.Lock()
	s, userMsg, sel := ReceiveText(c.session, a.text, c.stamp())
	c.session = s
	c.typing = true
	c.mu.Unlock()
	c.appended(s, userMsg)
	c.publish(Event{Type: EventTyping, Typing: true})

	if c.cfg.ReplyDelay > 0 {
		timer := time.NewTimer(c.cfg.ReplyDelay)
		<-timer.C
	}

	c.mu.Lock()
	s, reply := Reply(c.session, sel, c.stamp())
	c.session = s
	c.typing = false
	c.lastActive = c.cfg.Now()
	c.mu.Unlock()
	c.publish(Event{Type: EventTyping, Typing: false})
	c.appended(s, reply)

	a.pending.resolve(Result{User: &userMsg, Reply: reply.Clone()}, nil)
}

func (c *Controller) handleQuote(a action) {
	if c.cfg.Assembler == nil {
		a.pending.resolve(Result{}, errors.New("quote assembler not configured"))
		return
	}

	c.mu.Lock()
	s, msg, err := SubmitQuote(c.session, a.profile, c.cfg.Assembler, c.stamp())
	if err != nil {
		c.mu.Unlock()
		a.pending.resolve(Result{}, err)
		return
	}
	c.session = s
	c.lastActive = c.cfg.Now()
	c.mu.Unlock()
	c.appended(s, msg)

	a.pending.resolve(Result{Reply: msg.Clone()}, nil)
}

func (c *Controller) appended(s Session, msg domain.ChatMessage) {
	m := msg.Clone()
	c.publish(Event{Type: EventMessage, Message: &m})
	if c.cfg.Observer != nil {
		c.cfg.Observer(s, msg)
	}
}

func (c *Controller) publish(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.cfg.Logger.Warn("dropping chat event for slow subscriber",
				"session_id", c.id,
				"subscriber", id,
				"type", ev.Type,
			)
		}
	}
}
