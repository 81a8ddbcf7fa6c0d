package analyst

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn in a conversation. History is an append-only
// ordered sequence of messages, owned by the UI layer and passed into each
// model call as read-mostly context.
type Message struct {
	Role    Role
	Content string
}
