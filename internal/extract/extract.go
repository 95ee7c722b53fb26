// Package extract pulls email drafts out of free-form assistant text.
//
// Three strategies are tried in order and the first that matches wins:
// fenced ```email blocks (every block becomes a draft), a "Subject:" line
// followed by a body, and finally a loose salutation..closing span.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/metrics"
)

// Method names the strategy that produced a match.
type Method string

const (
	MethodFence   Method = "fence"
	MethodSubject Method = "subject"
	MethodLoose   Method = "loose"
	MethodNone    Method = "none"
)

// DefaultSubject is used when a block carries no subject line.
const DefaultSubject = "Professional Email"

var (
	fenceRe        = regexp.MustCompile("(?s)```email\n(.*?)\n```")
	subjectLineRe  = regexp.MustCompile(`(?i)Subject:\s*(.+?)(?:\n\n|\n)`)
	looseRe        = regexp.MustCompile(`(?i)(Dear|Hi|Hello)[\s\S]*?(Best regards|Sincerely|Best|Thank you|Regards)`)
	subjectRe      = regexp.MustCompile(`(?i)Subject:\s*(.+)`)
	subjectStripRe = regexp.MustCompile(`(?i)Subject:\s*.+\n*`)
	bodyStopRe     = regexp.MustCompile(`(?i)\n\n(?:---|let me know)`)
)

// draftNamespace seeds content-derived draft IDs.
var draftNamespace = uuid.MustParse("6f1c1c1e-3b7a-4c57-9d57-2f7f0b8f4a10")

// Extractor turns assistant text into drafts.
type Extractor struct {
	now func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock overrides the draft timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the drafts found in text, or nil when nothing looks like
// an email yet. It has no side effects besides metrics.
func (e *Extractor) Extract(text string) []domain.EmailDraft {
	blocks, method := Blocks(text)
	metrics.Get().Extractions.WithLabelValues(string(method)).Inc()
	if len(blocks) == 0 {
		return nil
	}

	drafts := make([]domain.EmailDraft, 0, len(blocks))
	for _, b := range blocks {
		drafts = append(drafts, e.Process(b))
	}
	return drafts
}

// Process normalizes one email block into a draft. The first Subject: line
// becomes the subject and is removed, with any blank lines after it, from
// the body. FullText is the block unchanged.
func (e *Extractor) Process(block string) domain.EmailDraft {
	subject := DefaultSubject
	if m := subjectRe.FindStringSubmatch(block); m != nil {
		subject = strings.TrimSpace(m[1])
	}

	body := block
	if loc := subjectStripRe.FindStringIndex(block); loc != nil {
		body = block[:loc[0]] + block[loc[1]:]
	}

	return domain.EmailDraft{
		ID:        uuid.NewSHA1(draftNamespace, []byte(block)).String(),
		Subject:   subject,
		Body:      strings.TrimSpace(body),
		FullText:  block,
		CreatedAt: e.now().UTC(),
	}
}

// Blocks returns the raw email blocks found in text and the strategy that
// found them.
func Blocks(text string) ([]string, Method) {
	if ms := fenceRe.FindAllStringSubmatch(text, -1); len(ms) > 0 {
		out := make([]string, 0, len(ms))
		for _, m := range ms {
			out = append(out, strings.TrimSpace(m[1]))
		}
		return out, MethodFence
	}

	if loc := subjectLineRe.FindStringSubmatchIndex(text); loc != nil {
		subject := text[loc[2]:loc[3]]
		rest := text[loc[1]:]
		body := rest[:stopIndex(rest)]
		return []string{strings.TrimSpace("Subject: " + subject + "\n\n" + body)}, MethodSubject
	}

	if m := looseRe.FindString(text); m != "" {
		block := strings.TrimSpace(m)
		if !strings.Contains(block, "Subject:") {
			block = "Subject: " + DefaultSubject + "\n\n" + block
		}
		return []string{block}, MethodLoose
	}

	return nil, MethodNone
}

// stopIndex returns where the body of a subject-strategy email ends.
func stopIndex(s string) int {
	if loc := bodyStopRe.FindStringIndex(s); loc != nil {
		return loc[0]
	}
	return len(s)
}
