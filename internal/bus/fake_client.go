package bus

import (
	"fmt"
	"strings"
	"sync"
)

// Publication is one outbound publish recorded by the FakeClient.
type Publication struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakeClient is an in-memory Client for tests. The broker side is scripted:
// SetReachable controls whether connect attempts succeed, and Inject delivers
// an inbound message to the registered handler.
type FakeClient struct {
	mu sync.Mutex

	reachable bool
	connected bool

	opts      ConnectOptions
	onMessage func(Message)

	connectAttempts int
	subscriptions   []string
	published       []Publication
}

// Verify FakeClient implements Client.
var _ Client = (*FakeClient)(nil)

// NewFakeClient creates a FakeClient whose broker is reachable.
func NewFakeClient() *FakeClient {
	return &FakeClient{reachable: true}
}

// SetReachable scripts whether subsequent connect attempts succeed. Making
// the broker unreachable also drops an established session.
func (c *FakeClient) SetReachable(reachable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reachable = reachable
	if !reachable {
		c.connected = false
	}
}

func (c *FakeClient) Connect(opts ConnectOptions, onMessage func(Message)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return fmt.Errorf("fake bus: already connected")
	}
	c.connectAttempts++
	c.opts = opts
	c.onMessage = onMessage
	c.connected = c.reachable
	return nil
}

func (c *FakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *FakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *FakeClient) Subscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return fmt.Errorf("fake bus: not connected")
	}
	c.subscriptions = append(c.subscriptions, topic)
	return nil
}

func (c *FakeClient) Publish(topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return fmt.Errorf("fake bus: not connected")
	}
	p := Publication{Topic: topic, Retained: retained}
	p.Payload = append(p.Payload, payload...)
	c.published = append(c.published, p)
	return nil
}

// Inject delivers an inbound message to the registered handler, as the
// broker would for a subscribed topic.
func (c *FakeClient) Inject(topic string, payload []byte) {
	c.mu.Lock()
	handler := c.onMessage
	connected := c.connected
	c.mu.Unlock()
	if handler != nil && connected {
		handler(Message{Topic: topic, Payload: payload})
	}
}

// ConnectAttempts returns the number of Connect calls so far.
func (c *FakeClient) ConnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectAttempts
}

// ConnectOptions returns the options of the latest Connect call.
func (c *FakeClient) ConnectOptions() ConnectOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Subscriptions returns all subscribed topics in order.
func (c *FakeClient) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscriptions...)
}

// Published returns all recorded publications in order.
func (c *FakeClient) Published() []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Publication(nil), c.published...)
}

// PublishedTo returns the publications whose topic ends with the given
// suffix.
func (c *FakeClient) PublishedTo(suffix string) []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Publication
	for _, p := range c.published {
		if strings.HasSuffix(p.Topic, suffix) {
			out = append(out, p)
		}
	}
	return out
}
