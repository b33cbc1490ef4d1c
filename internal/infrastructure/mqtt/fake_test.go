package mqtt

import (
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a completed paho token.
type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeBroker implements pahomqtt.Client in memory. Published messages are
// delivered synchronously to matching exact-topic subscriptions.
type fakeBroker struct {
	mu           sync.Mutex
	connectErrs  []error
	refuseAll    bool
	connectCalls int
	connected    bool
	publishErr   error
	publishStall bool
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	disconnects  int
	unsubscribed []string
	subscribeErr error
	options      *pahomqtt.ClientOptions
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: map[string]pahomqtt.MessageHandler{}}
}

func (b *fakeBroker) factory(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	b.options = opts
	return b
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) IsConnectionOpen() bool { return b.IsConnected() }

func (b *fakeBroker) Connect() pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectCalls++
	if b.refuseAll {
		return &fakeToken{err: errRefused}
	}
	if len(b.connectErrs) >= b.connectCalls {
		if err := b.connectErrs[b.connectCalls-1]; err != nil {
			return &fakeToken{err: err}
		}
	}
	b.connected = true
	return &fakeToken{}
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnects++
	b.connected = false
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	b.mu.Lock()
	if b.publishStall {
		b.mu.Unlock()
		return &fakeToken{pending: true}
	}
	if b.publishErr != nil {
		b.mu.Unlock()
		return &fakeToken{err: b.publishErr}
	}
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	b.published = append(b.published, published{topic: topic, qos: qos, retained: retained, payload: data})
	handler := b.handlers[topic]
	b.mu.Unlock()

	if handler != nil {
		handler(b, &fakeMessage{topic: topic, payload: data})
	}
	return &fakeToken{}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return &fakeToken{err: b.subscribeErr}
	}
	b.handlers[topic] = callback
	return &fakeToken{}
}

func (b *fakeBroker) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		b.Subscribe(topic, qos, callback)
	}
	return &fakeToken{}
}

func (b *fakeBroker) Unsubscribe(topics ...string) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		delete(b.handlers, topic)
		b.unsubscribed = append(b.unsubscribed, topic)
	}
	return &fakeToken{}
}

func (b *fakeBroker) AddRoute(string, pahomqtt.MessageHandler) {}

func (b *fakeBroker) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (b *fakeBroker) connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectCalls
}

func (b *fakeBroker) hasHandler(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[topic]
	return ok
}

// drop simulates the broker going away.
func (b *fakeBroker) drop() {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

func (b *fakeBroker) publishedOn(topic string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, p := range b.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

var errRefused = errors.New("connection refused")
