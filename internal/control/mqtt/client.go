package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 500 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxReconnectInterval     = 30 * time.Second
	maxQoS                   = 2
)

// MessageHandler receives one message. Returned errors are logged.
type MessageHandler func(topic string, payload []byte) error

// Client is the broker capability the surface needs.
type Client interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler MessageHandler) error
	Close() error
}

// Options configures a broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Topics   Topics
}

type statusPayload struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
}

func buildStatusPayload(status, clientID string) []byte {
	data, _ := json.Marshal(statusPayload{Status: status, ClientID: clientID})
	return data
}

type subscription struct {
	topic   string
	handler MessageHandler
}

// PahoClient wraps paho.mqtt.golang. Subscriptions are restored and the
// online status republished on every reconnect.
type PahoClient struct {
	client pahomqtt.Client
	opts   Options
	logger *logrus.Logger

	subMu         sync.RWMutex
	subscriptions map[string]subscription
}

func buildClientOptions(opts Options) *pahomqtt.ClientOptions {
	o := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetKeepAlive(defaultKeepAlive).
		SetConnectTimeout(defaultConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetCleanSession(true).
		SetOrderMatters(false)

	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}

	o.SetBinaryWill(opts.Topics.Status(), buildStatusPayload("offline", opts.ClientID), opts.QoS, true)
	return o
}

// Connect dials the broker and publishes the online status.
func Connect(opts Options, logger *logrus.Logger) (*PahoClient, error) {
	if opts.Broker == "" {
		return nil, ErrBrokerUnspecified
	}
	if opts.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	if logger == nil {
		logger = logrus.New()
	}

	c := &PahoClient{
		opts:          opts,
		logger:        logger,
		subscriptions: make(map[string]subscription),
	}

	po := buildClientOptions(opts)
	po.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.WithField("error", err).Warn("MQTT connection lost, reconnecting...")
	})

	c.client = pahomqtt.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.logger.WithFields(logrus.Fields{"broker": opts.Broker, "client_id": opts.ClientID}).Info("Connected to MQTT broker")
	return c, nil
}

func (c *PahoClient) handleConnect() {
	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, c.opts.QoS, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	c.client.Publish(c.opts.Topics.Status(), c.opts.QoS, true, buildStatusPayload("online", c.opts.ClientID))
}

func (c *PahoClient) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.opts.QoS, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (c *PahoClient) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, c.opts.QoS, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (c *PahoClient) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// Close publishes a graceful offline status and disconnects.
func (c *PahoClient) Close() error {
	if c.client == nil {
		return nil
	}
	if c.client.IsConnectionOpen() {
		token := c.client.Publish(c.opts.Topics.Status(), c.opts.QoS, true, buildStatusPayload("offline", c.opts.ClientID))
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// wrapHandler adapts a MessageHandler to paho with panic recovery and logging.
func (c *PahoClient) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return wrapHandler(handler, c.logger)
}

func wrapHandler(handler MessageHandler, logger *logrus.Logger) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{"topic": msg.Topic(), "panic": r}).Error("MQTT handler panic recovered")
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			logger.WithFields(logrus.Fields{"topic": msg.Topic(), "error": err}).Warn("MQTT handler returned error")
		}
	}
}
