package events

// Message is one event received from the bus.
type Message struct {
	Topic string
	// ID is the publisher-assigned event id; empty for events without one.
	ID      string
	Project string
	Data    []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel until the
	// returned cancel function is called, which also closes the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
