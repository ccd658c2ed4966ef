package reload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	id   string
	fail bool

	mu       sync.Mutex
	received []string
	closed   bool
}

func (m *mockClient) ID() string { return m.id }

func (m *mockClient) Deliver(msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("broken pipe")
	}
	m.received = append(m.received, string(msg))
	return nil
}

func (m *mockClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockClient) state() ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.received...), m.closed
}

func startHub(t *testing.T) (*Hub, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	hub := NewHub(nil, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("hub did not stop")
		}
	})
	return hub, reg
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub, _ := startHub(t)

	clients := make([]*mockClient, 5)
	for i := range clients {
		clients[i] = &mockClient{id: fmt.Sprintf("c%d", i)}
		hub.Register(clients[i])
	}

	d := hub.Notify()
	assert.Equal(t, Delivery{Attempted: 5}, d)
	for _, c := range clients {
		received, closed := c.state()
		assert.Equal(t, []string{Message}, received)
		assert.False(t, closed)
	}
	assert.Equal(t, 5, hub.Count())
}

func TestBroadcastFailureDoesNotBlockOthers(t *testing.T) {
	hub, reg := startHub(t)

	clients := make([]*mockClient, 4)
	for i := range clients {
		clients[i] = &mockClient{id: fmt.Sprintf("c%d", i), fail: i == 1}
		hub.Register(clients[i])
	}

	d := hub.Notify()
	assert.Equal(t, Delivery{Attempted: 4, Failed: 1}, d)

	for i, c := range clients {
		received, closed := c.state()
		if i == 1 {
			assert.Empty(t, received)
			assert.True(t, closed, "failed client is closed")
			continue
		}
		assert.Equal(t, []string{Message}, received)
	}
	assert.Equal(t, 3, hub.Count(), "failed client is dropped")

	// the dropped client is not attempted again
	d = hub.Notify()
	assert.Equal(t, Delivery{Attempted: 3}, d)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 6.0, values["devreload_reloads_sent_total"])
	assert.Equal(t, 1.0, values["devreload_transport_errors_total"])
	assert.Equal(t, 3.0, values["devreload_clients"])
}

func TestRegistryTracksConnectAndDisconnect(t *testing.T) {
	hub, _ := startHub(t)

	a := &mockClient{id: "a"}
	b := &mockClient{id: "b"}
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.Count())

	hub.Unregister("a")
	hub.Unregister("unknown")
	assert.Equal(t, 1, hub.Count())

	_, closed := a.state()
	assert.True(t, closed)

	d := hub.Notify()
	assert.Equal(t, 1, d.Attempted)
	received, _ := a.state()
	assert.Empty(t, received, "removed client receives nothing")
	received, _ = b.state()
	assert.Equal(t, []string{Message}, received)
}

func TestNotifyWithNoClients(t *testing.T) {
	hub, _ := startHub(t)
	assert.Equal(t, Delivery{}, hub.Notify())
	assert.Equal(t, 0, hub.Count())
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil, prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()

	c := &mockClient{id: "c"}
	hub.Register(c)
	cancel()
	<-done

	_, closed := c.state()
	assert.True(t, closed)
	assert.Equal(t, 0, hub.Count())

	// calls after shutdown return instead of blocking
	late := &mockClient{id: "late"}
	hub.Register(late)
	_, closed = late.state()
	assert.True(t, closed)
	hub.Unregister("c")
	assert.Equal(t, Delivery{}, hub.Notify())
}

func TestConcurrentRegisterAndNotify(t *testing.T) {
	hub, _ := startHub(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			hub.Register(&mockClient{id: fmt.Sprintf("c%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			d := hub.Notify()
			assert.Zero(t, d.Failed)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, hub.Count())
}
