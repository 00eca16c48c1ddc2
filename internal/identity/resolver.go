package identity

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Candidates holds the platform-supplied identity fields for a message
// sender, in descending priority order.
type Candidates struct {
	ActorID      string
	FromID       string
	SenderID     string
	SenderHandle string
	DisplayName  string
}

func (c Candidates) ordered() []string {
	return []string{c.ActorID, c.FromID, c.SenderID, c.SenderHandle, c.DisplayName}
}

// QuirkFunc reports whether a candidate sender id should be discarded for a
// group chat. Platforms differ here; on the reference platform "from"
// sometimes resolves to the group itself instead of the user.
type QuirkFunc func(candidate, groupID string) bool

// GroupEchoQuirk discards a candidate that equals the group id.
func GroupEchoQuirk(candidate, groupID string) bool {
	return candidate == groupID
}

// Resolver derives a stable conversation key from ambiguous identity fields.
// It never fails: when every candidate is exhausted it synthesizes a
// deterministic fallback id from the chat id. That fallback is lossy and may
// collide; it is accepted as best effort.
type Resolver struct {
	// Quirk is applied to candidates in group scope only. Nil disables it.
	Quirk QuirkFunc
}

// Resolve picks the sender id and builds the session key. chatID is the
// group id in group scope and the peer conversation id otherwise.
func (r *Resolver) Resolve(chatID string, isGroup bool, c Candidates) string {
	sender := r.senderID(chatID, isGroup, c)
	if isGroup {
		return fmt.Sprintf("%s_%s", chatID, sender)
	}
	return sender
}

func (r *Resolver) senderID(chatID string, isGroup bool, c Candidates) string {
	for _, candidate := range c.ordered() {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if isGroup && r.Quirk != nil && r.Quirk(candidate, chatID) {
			continue
		}
		return candidate
	}
	return FallbackID(chatID)
}

// FallbackID hashes the chat id into a small numeric space, matching the
// legacy key format so long-lived caches survive a platform identity outage.
func FallbackID(chatID string) string {
	h := fnv.New32a()
	h.Write([]byte(chatID))
	return fmt.Sprintf("user_%d", h.Sum32()%10000)
}
