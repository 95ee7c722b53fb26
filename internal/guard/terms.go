package guard

// IntentTerms must appear somewhere in a conversation for it to count as
// email-related.
var IntentTerms = []string{
	"email", "write an email", "compose an email", "send an email",
	"mail", "write an mail", "compose an mail", "send an mail",
}

// ConversationBannedTerms reject a whole conversation.
var ConversationBannedTerms = []string{
	"joke", "story", "essay", "poem", "tweet", "code", "blog", "art", "paint", "draw",
	"song", "lyrics", "novel", "video", "photo", "image",
}

// FieldBannedTerms reject the context field of a structured email request.
var FieldBannedTerms = []string{
	"essay", "story", "joke", "code", "tweet", "poem", "rap", "blog", "novel",
	"drawing", "image", "picture", "paint", "art", "generate text", "linkedin post",
	"social media", "social media post", "social media content",
	"code snippet", "code example", "code generation", "code writing", "code creation",
	"programming", "programming language", "programming languages",
	"programming code", "programming example",
}

// Reply texts surfaced to clients.
const (
	OffDomainReply      = "📧 This assistant only helps with writing emails. Please describe the email you want help with."
	MissingFieldsReply  = "Missing required fields: 'context' and 'purpose' are required."
	FieldOffDomainReply = "This tool is only for generating professional emails. Please ensure your context is email-related."
	InvalidRequestReply = "Invalid request format. Expecting JSON body with 'context' and 'purpose'."
)
