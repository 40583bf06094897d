package assistant

import (
	"errors"
	"slices"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
)

// ErrNoQuoteFormPending is returned when a quote form is submitted while none was requested.
var ErrNoQuoteFormPending = errors.New("no quote form pending")

// State is the conversation flow state of a session.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingQuoteForm State = "awaiting_quote_form"
	StateQuoteDisplayed    State = "quote_displayed"
)

// Stamp carries the identity and time of a message created by a transition.
type Stamp struct {
	ID string
	At time.Time
}

// QuoteAssembler builds a quote from a validated client profile.
type QuoteAssembler interface {
	Assemble(p domain.ClientProfile) domain.Quote
}

// Session is the explicit state of one chat session.
// Transition functions return a new Session and never modify the one they are given.
type Session struct {
	ID       string
	State    State
	Messages []domain.ChatMessage
}

// NewSession starts a session whose transcript opens with the assistant greeting.
func NewSession(id string, greeting Stamp) Session {
	s := Session{ID: id, State: StateIdle}
	s, _ = s.appendMessage(domain.ChatMessage{
		ID:        greeting.ID,
		Author:    domain.AuthorAssistant,
		Kind:      domain.KindText,
		Body:      GreetingMessage,
		Timestamp: greeting.At,
	})
	return s
}

// Len returns the number of messages in the transcript.
func (s Session) Len() int {
	return len(s.Messages)
}

// HasQuote reports whether a quote has been displayed in the session.
func (s Session) HasQuote() bool {
	for _, m := range s.Messages {
		if m.Kind == domain.KindQuote {
			return true
		}
	}
	return false
}

// FindQuote returns the quote with the given id from the transcript.
func (s Session) FindQuote(id string) (domain.Quote, bool) {
	for _, m := range s.Messages {
		if m.Quote != nil && m.Quote.ID == id {
			return *m.Quote, true
		}
	}
	return domain.Quote{}, false
}

// After returns the messages whose sequence number is greater than seq.
func (s Session) After(seq int64) []domain.ChatMessage {
	if seq < 0 {
		seq = 0
	}
	if seq >= int64(len(s.Messages)) {
		return nil
	}
	return slices.Clone(s.Messages[seq:])
}

// ReceiveText appends a user message and consults the response selector once.
// A session showing a quote returns to idle before the message is handled.
func ReceiveText(s Session, text string, at Stamp) (Session, domain.ChatMessage, Selection) {
	if s.State == StateQuoteDisplayed {
		s.State = StateIdle
	}
	s, msg := s.appendMessage(domain.ChatMessage{
		ID:        at.ID,
		Author:    domain.AuthorUser,
		Kind:      domain.KindText,
		Body:      text,
		Timestamp: at.At,
	})
	return s, msg, SelectResponse(text)
}

// Reply appends the assistant's answer to a selection.
// The quote flow asks for the quote form; canned replies leave a pending form in place.
func Reply(s Session, sel Selection, at Stamp) (Session, domain.ChatMessage) {
	msg := domain.ChatMessage{
		ID:        at.ID,
		Author:    domain.AuthorAssistant,
		Kind:      domain.KindText,
		Body:      sel.Text,
		Timestamp: at.At,
	}

	switch sel.Kind {
	case SelectQuoteFlow:
		msg.Kind = domain.KindQuoteForm
		msg.Body = QuoteFormPrompt
		msg.Form = domain.NewQuoteFormRequest()
		s.State = StateAwaitingQuoteForm
	default:
		if s.State != StateAwaitingQuoteForm {
			s.State = StateIdle
		}
	}
	return s.appendMessage(msg)
}

// SubmitQuote assembles a quote for profile and appends it to the transcript.
// It is only valid while a quote form is pending.
func SubmitQuote(s Session, profile domain.ClientProfile, assembler QuoteAssembler, at Stamp) (Session, domain.ChatMessage, error) {
	if s.State != StateAwaitingQuoteForm {
		return s, domain.ChatMessage{}, ErrNoQuoteFormPending
	}

	q := assembler.Assemble(profile)
	s.State = StateQuoteDisplayed
	s, msg := s.appendMessage(domain.ChatMessage{
		ID:        at.ID,
		Author:    domain.AuthorAssistant,
		Kind:      domain.KindQuote,
		Body:      QuoteReadyPrompt,
		Quote:     &q,
		Timestamp: at.At,
	})
	return s, msg, nil
}

// appendMessage returns a copy of s with m appended. The clip forces a fresh
// backing array so earlier Session values keep their transcript.
func (s Session) appendMessage(m domain.ChatMessage) (Session, domain.ChatMessage) {
	m.Seq = int64(len(s.Messages)) + 1
	s.Messages = append(slices.Clip(s.Messages), m)
	return s, m
}
