// Package prompt flattens a role-tagged chat history into the single block of
// text the web chat input accepts.
package prompt

import (
	"fmt"
	"strings"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one entry of the conversation.
type Message struct {
	Role    Role
	Content string
}

// Separator joins formatted messages.
const Separator = "\n"

// Format renders each message as "<role>: <content>" in input order, joined
// by Separator. Roles are written as given. Nothing is truncated or escaped,
// so content with line breaks continues on further lines after its prefix.
func Format(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString(Separator)
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return b.String()
}
