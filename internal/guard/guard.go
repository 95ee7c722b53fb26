// Package guard keeps requests within the email-writing domain using static
// keyword rules.
package guard

import (
	"strings"

	"github.com/ashureev/mailsmith/internal/domain"
)

// Kind classifies a guard decision.
type Kind string

const (
	KindAllowed       Kind = "allowed"
	KindOffDomain     Kind = "off_domain"
	KindMissingFields Kind = "missing_fields"
)

// Decision is the transient result of a guard evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Kind    Kind   `json:"kind"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true, Kind: KindAllowed}
}

func reject(kind Kind, reason string) Decision {
	return Decision{Kind: kind, Reason: reason}
}

// Fields is the structured input of the field-form guard.
type Fields struct {
	Context string `json:"context"`
	Purpose string `json:"purpose"`
}

// Evaluator decides whether a request is email-related.
type Evaluator interface {
	EvaluateConversation(messages []domain.Message) Decision
	EvaluateText(text string) Decision
	EvaluateFields(f Fields) Decision
}

// Rule is one step of the ordered rule set. Require terms must be present
// (at least one) and Deny terms must be absent (all of them). Matching is
// lowercase substring containment.
type Rule struct {
	Name    string
	Require []string
	Deny    []string
	Reason  string
}

// Matches reports whether lowered text passes the rule.
func (r Rule) Matches(lowered string) bool {
	if len(r.Require) > 0 && !containsAny(lowered, r.Require) {
		return false
	}
	return !containsAny(lowered, r.Deny)
}

// Guard applies rule sets for the conversation form and the field form.
type Guard struct {
	conversation []Rule
	fields       []Rule
}

var _ Evaluator = (*Guard)(nil)

// New creates a guard from explicit rule sets.
func New(conversation, fields []Rule) *Guard {
	return &Guard{conversation: conversation, fields: fields}
}

// Default returns the guard with the built-in term lists.
func Default() *Guard {
	return New(
		[]Rule{
			{Name: "email_intent", Require: IntentTerms, Reason: OffDomainReply},
			{Name: "banned_topic", Deny: ConversationBannedTerms, Reason: OffDomainReply},
		},
		[]Rule{
			{Name: "banned_context", Deny: FieldBannedTerms, Reason: FieldOffDomainReply},
		},
	)
}

// EvaluateConversation joins every message content, regardless of role,
// and runs the conversation rules over it.
func (g *Guard) EvaluateConversation(messages []domain.Message) Decision {
	return g.EvaluateText(domain.JoinContents(messages))
}

// EvaluateText runs the conversation rules over a single text.
func (g *Guard) EvaluateText(text string) Decision {
	return evaluate(g.conversation, strings.ToLower(text))
}

// EvaluateFields rejects when context or purpose is absent, otherwise runs
// the field rules over the lowered context only.
func (g *Guard) EvaluateFields(f Fields) Decision {
	if f.Context == "" || f.Purpose == "" {
		return reject(KindMissingFields, MissingFieldsReply)
	}
	return evaluate(g.fields, strings.ToLower(f.Context))
}

func evaluate(rules []Rule, lowered string) Decision {
	for _, r := range rules {
		if !r.Matches(lowered) {
			return reject(KindOffDomain, r.Reason)
		}
	}
	return allow()
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
