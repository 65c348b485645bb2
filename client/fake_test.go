package client

import (
	"encoding/json"
	"sync"

	"location-relay/models"
)

type fakeSocket struct {
	mu        sync.Mutex
	connected bool
	emits     []models.Envelope
	handlers  map[string][]Handler
	hooks     []func()
}

func newFakeSocket(connected bool) *fakeSocket {
	return &fakeSocket{connected: connected, handlers: make(map[string][]Handler)}
}

func (f *fakeSocket) Emit(eventType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.emits = append(f.emits, models.Envelope{Type: eventType, Data: data})
	return nil
}

func (f *fakeSocket) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSocket) On(eventType string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[eventType] = append(f.handlers[eventType], h)
}

func (f *fakeSocket) OnConnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

func (f *fakeSocket) connect() {
	f.mu.Lock()
	f.connected = true
	hooks := append([]func(){}, f.hooks...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (f *fakeSocket) deliver(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	hs := append([]Handler{}, f.handlers[eventType]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(models.Envelope{Type: eventType, Data: data})
	}
}

func (f *fakeSocket) emitted(eventType string) []models.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Envelope
	for _, env := range f.emits {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeSocket) all() []models.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Envelope{}, f.emits...)
}
