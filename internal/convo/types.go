package convo

// Role attributes a turn to one side of the conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one element of a turn: text, or a reference to stored image
// bytes. Exactly one field is set. Image references are resolved lazily, at
// the moment a turn is serialized into an upstream request.
type Part struct {
	Text      string
	ImagePath string
}

// Turn is one exchange unit in a conversation history.
type Turn struct {
	Role  Role
	Parts []Part
}

// TextTurn builds a single-part text turn.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}
