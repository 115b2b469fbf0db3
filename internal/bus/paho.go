package bus

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/blesim/ble-sim/internal/safego"
)

const qosAtLeastOnce = 1

// PahoClient is the production Client, backed by the paho MQTT library.
// Reconnection is owned by the bus manager, so automatic reconnect is
// disabled and every Connect builds a fresh session.
type PahoClient struct {
	logger *log.Logger
	client mqtt.Client
}

// Verify PahoClient implements Client.
var _ Client = (*PahoClient)(nil)

// NewPahoClient creates a PahoClient.
func NewPahoClient(logger *log.Logger) *PahoClient {
	if logger == nil {
		panic("PahoClient: logger cannot be nil")
	}
	return &PahoClient{logger: logger}
}

// Connect starts a connection attempt. It does not wait for the attempt to
// complete; poll IsConnected.
func (c *PahoClient) Connect(opts ConnectOptions, onMessage func(Message)) error {
	if c.client != nil && c.client.IsConnected() {
		return fmt.Errorf("bus: already connected")
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(false).
		SetConnectTimeout(4 * time.Second).
		SetConnectRetry(false).
		SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
			onMessage(Message{Topic: msg.Topic(), Payload: msg.Payload()})
		})
	if opts.WillTopic != "" {
		mqttOpts.SetBinaryWill(opts.WillTopic, opts.WillPayload, qosAtLeastOnce, true)
	}

	c.client = mqtt.NewClient(mqttOpts)
	token := c.client.Connect()
	safego.Go(c.logger, func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Printf("bus: connect to %s: %v", opts.BrokerURL, err)
		}
	})
	return nil
}

func (c *PahoClient) Disconnect() {
	if c.client == nil {
		return
	}
	c.client.Disconnect(250)
}

func (c *PahoClient) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *PahoClient) Subscribe(topic string) error {
	if c.client == nil {
		return fmt.Errorf("bus: not connected")
	}
	// Messages arrive through the default publish handler.
	token := c.client.Subscribe(topic, qosAtLeastOnce, nil)
	safego.Go(c.logger, func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Printf("bus: subscribe %s: %v", topic, err)
		}
	})
	return nil
}

func (c *PahoClient) Publish(topic string, payload []byte, retained bool) error {
	if c.client == nil || !c.client.IsConnected() {
		return fmt.Errorf("bus: not connected")
	}
	c.client.Publish(topic, qosAtLeastOnce, retained, payload)
	return nil
}
