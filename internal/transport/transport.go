package transport

import "context"

// Kind classifies an inbound message.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindOther
)

// Message is one inbound chat message, already filtered to direct
// (non-group) conversations. Media bytes are fetched lazily through
// the accessor so text-only handling never downloads anything.
type Message struct {
	From     string // sender identifier, digits only
	Kind     Kind
	Text     string
	MediaRef string // stable reference for caching (content hash or URL)
	Media    func(ctx context.Context) ([]byte, error)
}

// Handler consumes inbound messages.
type Handler func(Message)

// Sender delivers plain text back to a recipient identity.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

// Transport is a full messaging adapter: it sends, emits inbound
// messages to the registered handler, and has a lifecycle.
type Transport interface {
	Sender
	OnMessage(Handler)
	Start(ctx context.Context) error
	Stop()
}
