package mailbox

import "github.com/Iron-Ham/foreman/internal/event"

// NewMessageSentEvent creates an event.MessageSentEvent from a Message.
func NewMessageSentEvent(msg Message) event.MessageSentEvent {
	return event.NewMessageSentEvent(msg.ID, msg.From, msg.To, string(msg.Kind), msg.Priority.String())
}
