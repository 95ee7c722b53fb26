package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// GenerationApology replaces the tool result when the model call fails.
const GenerationApology = "I apologize, but I encountered an error while generating the email. Please try again."

const (
	wrapLeadIn  = "Perfect! I've generated your email. Here it is:"
	wrapLeadOut = "You can copy this email and use it right away, or let me know if you'd like me to make any adjustments!"
)

// EnsureSubject guarantees a "Subject:" line. A first line that is not a
// greeting is promoted to the subject; otherwise "<Purpose> Email" is
// prepended.
func EnsureSubject(text, purpose string) string {
	text = strings.TrimSpace(text)
	if strings.Contains(text, "Subject:") {
		return text
	}

	lines := strings.Split(text, "\n")
	first := strings.TrimSpace(lines[0])
	lower := strings.ToLower(first)
	if first != "" && !strings.Contains(lower, "dear") && !strings.Contains(lower, "hi") {
		return "Subject: " + first + "\n\n" + strings.Join(lines[1:], "\n")
	}
	return "Subject: " + capitalize(purpose) + " Email\n\n" + text
}

// WrapEmail places an email inside the ```email fence with the chat lead-in
// and lead-out sentences.
func WrapEmail(email string) string {
	return wrapLeadIn + "\n\n```email\n" + email + "\n```\n\n" + wrapLeadOut
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
