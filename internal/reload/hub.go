// Package reload implements the reload broadcaster.
//
// A Hub goroutine is the single owner of the client registry. Connects,
// disconnects and broadcasts are messages on one channel and are applied
// in arrival order, so a client removed before a broadcast is never sent
// to, and every client present when a broadcast is processed receives
// exactly one delivery attempt. Deliveries only enqueue on the client; a
// slow or broken client is dropped without holding up the rest.
package reload

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/conneroisu/devreload/internal/errors"
	"github.com/conneroisu/devreload/internal/logging"
)

// Message is the directive sent to live clients after a rebuild.
const Message = "reload"

// Client is one live connection.
type Client interface {
	ID() string
	// Deliver queues msg without blocking.
	Deliver(msg []byte) error
	Close()
}

// Delivery summarises one broadcast.
type Delivery struct {
	Attempted int
	Failed    int
}

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opBroadcast
)

type op struct {
	kind   opKind
	client Client
	id     string
	msg    []byte
	reply  chan Delivery
}

// Hub owns the client registry.
type Hub struct {
	ops     chan op
	done    chan struct{}
	clients map[string]Client
	count   atomic.Int64
	logger  logging.Logger
	metrics *hubMetrics
}

type hubMetrics struct {
	clients  prometheus.Gauge
	reloads  prometheus.Counter
	failures prometheus.Counter
}

// NewHub creates a hub. reg may be nil.
func NewHub(logger logging.Logger, reg prometheus.Registerer) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	factory := promauto.With(reg)

	return &Hub{
		ops:     make(chan op),
		done:    make(chan struct{}),
		clients: make(map[string]Client),
		logger:  logger.WithComponent("reload"),
		metrics: &hubMetrics{
			clients: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: "devreload",
				Name:      "clients",
				Help:      "Number of connected live-reload clients",
			}),
			reloads: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "devreload",
				Name:      "reloads_sent_total",
				Help:      "Total number of reload directives queued to clients",
			}),
			failures: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "devreload",
				Name:      "transport_errors_total",
				Help:      "Total number of failed deliveries",
			}),
		},
	}
}

// Run processes registry messages until ctx is done, then closes every
// client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for id, c := range h.clients {
				c.Close()
				delete(h.clients, id)
			}
			h.sync()
			h.logger.Debug(ctx, "Hub stopped")
			return nil

		case o := <-h.ops:
			switch o.kind {
			case opRegister:
				h.clients[o.client.ID()] = o.client
				h.sync()
				h.logger.Info(ctx, "Client connected", "client", o.client.ID(), "total", len(h.clients))

			case opUnregister:
				if c, ok := h.clients[o.id]; ok {
					delete(h.clients, o.id)
					c.Close()
					h.sync()
					h.logger.Info(ctx, "Client disconnected", "client", o.id, "total", len(h.clients))
				}

			case opBroadcast:
				o.reply <- h.broadcast(ctx, o.msg)
			}
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, msg []byte) Delivery {
	var d Delivery
	for id, c := range h.clients {
		d.Attempted++
		if err := c.Deliver(msg); err != nil {
			d.Failed++
			h.metrics.failures.Inc()
			h.logger.Warn(ctx, errors.Transport("deliver", id, err), "Dropping client")
			delete(h.clients, id)
			c.Close()
			continue
		}
		h.metrics.reloads.Inc()
	}
	h.sync()
	return d
}

func (h *Hub) sync() {
	h.count.Store(int64(len(h.clients)))
	h.metrics.clients.Set(float64(len(h.clients)))
}

func (h *Hub) send(o op) bool {
	select {
	case h.ops <- o:
		return true
	case <-h.done:
		return false
	}
}

// Register adds c to the registry. After the hub stopped c is closed.
func (h *Hub) Register(c Client) {
	if !h.send(op{kind: opRegister, client: c}) {
		c.Close()
	}
}

// Unregister removes the client with id. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.send(op{kind: opUnregister, id: id})
}

// Notify sends Message to every registered client.
func (h *Hub) Notify() Delivery {
	return h.Broadcast([]byte(Message))
}

// Broadcast delivers msg to every registered client and reports how many
// deliveries were attempted and how many failed.
func (h *Hub) Broadcast(msg []byte) Delivery {
	reply := make(chan Delivery, 1)
	if !h.send(op{kind: opBroadcast, msg: msg, reply: reply}) {
		return Delivery{}
	}
	select {
	case d := <-reply:
		return d
	case <-h.done:
		return Delivery{}
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	return int(h.count.Load())
}
