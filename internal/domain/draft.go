package domain

import (
	"regexp"
	"strings"
	"time"
)

// EmailDraft is a parsed email extracted from assistant output.
// Drafts are read-only once created.
type EmailDraft struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	FullText  string    `json:"fullText"`
	CreatedAt time.Time `json:"createdAt"`
}

var nonAlnum = regexp.MustCompile(`(?i)[^a-z0-9]`)

// Filename returns the download name for the draft, e.g. "email-meeting-follow-up.txt".
func (d EmailDraft) Filename() string {
	return "email-" + strings.ToLower(nonAlnum.ReplaceAllString(d.Subject, "-")) + ".txt"
}
