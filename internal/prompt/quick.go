package prompt

// QuickPrompts start a conversation from the UI.
var QuickPrompts = []string{
	"Help me write a follow-up email after a job interview",
	"I need to apologize for a delayed response",
	"Write a cold email to a potential client",
	"Create a thank you email for a business meeting",
	"Help me decline a meeting politely",
	"Write a professional introduction email",
	"I need a proposal email for funding",
	"Help me write a networking email",
}

// QuickResponses answer a clarifying question from the UI.
var QuickResponses = []string{
	"Yes, that's correct",
	"No, let me clarify",
	"I'm not sure",
	"Can you give me an example?",
	"That works for me",
	"I need help with this",
}
