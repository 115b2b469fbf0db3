package bus

// Message is one inbound publication from the broker.
type Message struct {
	Topic   string
	Payload []byte
}

// ConnectOptions carries everything a Client needs to open a session,
// including the last-will published by the broker if the session dies.
type ConnectOptions struct {
	BrokerURL   string
	ClientID    string
	WillTopic   string
	WillPayload []byte
}

// Client is a non-blocking MQTT session. Connect starts an attempt and
// returns immediately; IsConnected reports when the session is actually up.
type Client interface {
	Connect(opts ConnectOptions, onMessage func(Message)) error
	Disconnect()
	IsConnected() bool
	Subscribe(topic string) error
	Publish(topic string, payload []byte, retained bool) error
}
