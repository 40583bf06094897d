package domain

import (
	"maps"
	"slices"
	"time"
)

// Author identifies who wrote a chat message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// MessageKind describes the payload a chat message carries.
type MessageKind string

const (
	KindText      MessageKind = "text"
	KindQuoteForm MessageKind = "quote_form"
	KindQuote     MessageKind = "quote"
)

// QuoteFormRequest is the payload of an assistant message asking for client details.
type QuoteFormRequest struct {
	Defaults        ClientProfile    `json:"defaults"`
	CoverageClasses []CoverageClass  `json:"coverage_classes"`
	CoverageOptions []CoverageOption `json:"coverage_options"`
	Residencies     []Residency      `json:"residencies"`
	// Labels maps coverage class and residency values to display names.
	Labels map[string]string `json:"labels"`
}

// NewQuoteFormRequest returns the form prompt with the standard form defaults.
func NewQuoteFormRequest() *QuoteFormRequest {
	labels := make(map[string]string, len(CoverageClasses)+len(Residencies))
	for _, c := range CoverageClasses {
		labels[string(c)] = c.Label()
	}
	for _, r := range Residencies {
		labels[string(r)] = r.Label()
	}
	return &QuoteFormRequest{
		Defaults: ClientProfile{
			Age:             30,
			Residency:       ResidencyUSA,
			CoverageClass:   CoverageIndividual,
			SelectedOptions: []CoverageOption{OptionBasic},
		},
		CoverageClasses: slices.Clone(CoverageClasses),
		CoverageOptions: slices.Clone(CoverageOptions),
		Residencies:     slices.Clone(Residencies),
		Labels:          labels,
	}
}

// ChatMessage is one entry of a session transcript.
// Seq is the 1-based position in the transcript.
type ChatMessage struct {
	ID        string            `json:"id"`
	Seq       int64             `json:"seq"`
	Author    Author            `json:"author"`
	Kind      MessageKind       `json:"kind"`
	Body      string            `json:"body"`
	Form      *QuoteFormRequest `json:"form,omitempty"`
	Quote     *Quote            `json:"quote,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Clone returns a copy of m whose quote and form payloads are not shared.
func (m ChatMessage) Clone() ChatMessage {
	if m.Quote != nil {
		q := m.Quote.Clone()
		m.Quote = &q
	}
	if m.Form != nil {
		f := *m.Form
		f.Defaults.SelectedOptions = slices.Clone(f.Defaults.SelectedOptions)
		f.CoverageClasses = slices.Clone(f.CoverageClasses)
		f.CoverageOptions = slices.Clone(f.CoverageOptions)
		f.Residencies = slices.Clone(f.Residencies)
		f.Labels = maps.Clone(f.Labels)
		m.Form = &f
	}
	return m
}
