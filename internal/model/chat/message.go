package chat

// Role tags the author of a transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. The JSON shape is what the history file and
// the completion endpoint both expect.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage seeds a transcript with the bot persona.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage wraps text typed by the end user.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage wraps a bot reply.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
