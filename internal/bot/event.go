package bot

import "github.com/easel-bot/easel/internal/identity"

// EventKind discriminates inbound chat events.
type EventKind string

const (
	EventText  EventKind = "text"
	EventImage EventKind = "image"
)

// Event is a normalized inbound chat message. ChatID is the group id in
// group scope and the peer conversation id otherwise.
type Event struct {
	ChatID  string              `json:"chat_id"`
	IsGroup bool                `json:"is_group"`
	Kind    EventKind           `json:"kind"`
	Text    string              `json:"text,omitempty"`
	Images  [][]byte            `json:"images,omitempty"`
	Sender  identity.Candidates `json:"sender"`
}

// ReplyKind discriminates outbound reply parts.
type ReplyKind string

const (
	ReplyText  ReplyKind = "text"
	ReplyImage ReplyKind = "image"
)

// Reply is one outbound message part. Image replies reference a stored
// artifact by path; the transport reads the bytes when delivering.
type Reply struct {
	Kind      ReplyKind `json:"kind"`
	Text      string    `json:"text,omitempty"`
	ImagePath string    `json:"image_path,omitempty"`
}

func textReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text}
}

func imageReply(path string) Reply {
	return Reply{Kind: ReplyImage, ImagePath: path}
}

// Notify delivers interim progress messages on transports that can push
// (the websocket event stream); request/response transports pass nil.
type Notify func(Reply)
