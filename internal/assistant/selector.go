// Package assistant implements the MediAI chat assistant: canned reply selection,
// the per-session conversation flow and its HTTP transport.
package assistant

import "strings"

// SelectionKind tells the flow controller what to do with a user message.
type SelectionKind string

const (
	// SelectQuoteFlow starts the structured quote-request flow.
	SelectQuoteFlow SelectionKind = "quote_flow"
	// SelectCanned answers with a fixed reply.
	SelectCanned SelectionKind = "canned"
)

// Canned replies and assistant prompts.
const (
	GreetingMessage  = "Hello! I'm MediAI, your insurance assistant. How can I help you today?"
	QuoteFormPrompt  = "I can help you generate a quote. Please fill out the following form with your client's details:"
	QuoteReadyPrompt = "Based on the information provided, here's the generated quote:"

	ReplyHello    = "Hello! How can I assist you with insurance today?"
	ReplyCoverage = "We offer various coverage options including health, life, property, and travel insurance. Would you like specific information about any of these?"
	ReplyFamily   = "Our family insurance plans cover all members of your household with comprehensive benefits. Would you like me to generate a quote for a family plan?"
	ReplyFallback = "Thank you for your question. I can provide information about our insurance policies, help generate quotes, or answer specific questions about coverage options. How else can I assist you?"
)

// Selection is the outcome of SelectResponse. Text is set only for canned replies.
type Selection struct {
	Kind SelectionKind `json:"kind"`
	Text string        `json:"text,omitempty"`
}

type rule struct {
	keywords []string
	reply    string
}

// cannedRules are checked in order after the quote-flow keywords.
var cannedRules = []rule{
	{keywords: []string{"hello", "hi"}, reply: ReplyHello},
	{keywords: []string{"coverage"}, reply: ReplyCoverage},
	{keywords: []string{"family"}, reply: ReplyFamily},
}

var quoteKeywords = []string{"quote", "quotation", "price"}

// SelectResponse maps free text to a canned reply or to the quote flow.
// Matching is a case-insensitive substring test; the first matching rule wins.
func SelectResponse(text string) Selection {
	lower := strings.ToLower(text)
	if containsAny(lower, quoteKeywords) {
		return Selection{Kind: SelectQuoteFlow}
	}
	for _, r := range cannedRules {
		if containsAny(lower, r.keywords) {
			return Selection{Kind: SelectCanned, Text: r.reply}
		}
	}
	return Selection{Kind: SelectCanned, Text: ReplyFallback}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
