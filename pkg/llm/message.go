package llm

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single text message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewTextMessage creates a message with the given role and text.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// UserMessage is shorthand for NewTextMessage(RoleUser, text).
func UserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// AssistantMessage is shorthand for NewTextMessage(RoleAssistant, text).
func AssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}
