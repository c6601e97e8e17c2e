package mqtt

import (
	"context"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/srg/blevol/internal/manager"
	"github.com/srg/blevol/internal/speaker"
)

type published struct {
	topic    string
	payload  string
	retained bool
}

// fakeClient is an in-memory broker: published messages are recorded and
// Deliver invokes the handler subscribed to a topic.
type fakeClient struct {
	mu         sync.Mutex
	messages   []published
	handlers   map[string]MessageHandler
	subErr     error
	publishErr error
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]MessageHandler)}
}

func (c *fakeClient) Publish(topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.messages = append(c.messages, published{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (c *fakeClient) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return c.subErr
	}
	c.handlers[topic] = handler
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) Deliver(topic, payload string) error {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return h(topic, []byte(payload))
}

func (c *fakeClient) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// last returns the most recent message on topic.
func (c *fakeClient) last(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].topic == topic {
			return c.messages[i], true
		}
	}
	return published{}, false
}

type fakeController struct {
	mu      sync.Mutex
	calls   []int
	devices []speaker.Info
	volume  int
	hasVol  bool
	loading bool
}

func (c *fakeController) SetVolume(_ context.Context, v int) (*manager.VolumeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, v)
	return &manager.VolumeResult{Value: v}, nil
}

func (c *fakeController) Devices() []speaker.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devices
}

func (c *fakeController) Volume() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume, c.hasVol
}

func (c *fakeController) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// settle moves the controller out of loading with devices and volume v.
func (c *fakeController) settle(devices []speaker.Info, v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	c.devices = devices
	c.volume, c.hasVol = v, true
}

func (c *fakeController) setCalls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.calls...)
}

// fakeMessage satisfies pahomqtt.Message for handler tests.
type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }
