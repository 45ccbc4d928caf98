package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsListener records connection lifecycle statistics as Prometheus
// metrics. Register it with Server.AddListener.
type MetricsListener struct {
	mu sync.RWMutex

	connected map[int]time.Time
	snapshot  ConnectionMetricsSnapshot

	connectionsTotal   prometheus.Counter
	connectionsCurrent prometheus.Gauge
	closedTotal        prometheus.Counter
	messagesTotal      prometheus.Counter
	bytesTotal         prometheus.Counter
	lifecycleTotal     *prometheus.CounterVec
	durationHist       prometheus.Histogram
}

// ConnectionMetricsSnapshot provides a point-in-time view of the counters.
type ConnectionMetricsSnapshot struct {
	ConnectionsTotal   uint64    `json:"connections_total"`
	ConnectionsCurrent uint64    `json:"connections_current"`
	ClosedTotal        uint64    `json:"closed_total"`
	MessagesReceived   uint64    `json:"messages_received"`
	BytesReceived      uint64    `json:"bytes_received"`
	Starts             uint64    `json:"starts"`
	Shutdowns          uint64    `json:"shutdowns"`
	LastUpdatedAt      time.Time `json:"last_updated_at,omitempty"`
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "netshell",
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// NewMetricsListener creates the collectors and registers them with registerer,
// prometheus.DefaultRegisterer when nil.
func NewMetricsListener(registerer prometheus.Registerer) (*MetricsListener, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &MetricsListener{
		connected:        make(map[int]time.Time),
		connectionsTotal: newCounter("connections", "accepted_total", "Total number of accepted connections"),
		connectionsCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netshell",
			Subsystem: "connections",
			Name:      "active",
			Help:      "Number of currently connected clients",
		}),
		closedTotal:   newCounter("connections", "closed_total", "Total number of closed connections"),
		messagesTotal: newCounter("receive", "messages_total", "Total number of received frames"),
		bytesTotal:    newCounter("receive", "bytes_total", "Total number of received bytes"),
		lifecycleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netshell",
			Subsystem: "server",
			Name:      "lifecycle_events_total",
			Help:      "Server start and shutdown events",
		}, []string{"event"}),
		durationHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netshell",
			Subsystem: "connections",
			Name:      "duration_seconds",
			Help:      "Lifetime of closed connections",
			Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 1800, 3600},
		}),
	}

	err := registerCollectors(registerer,
		m.connectionsTotal,
		m.connectionsCurrent,
		m.closedTotal,
		m.messagesTotal,
		m.bytesTotal,
		m.lifecycleTotal,
		m.durationHist,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// registerCollectors registers every collector, tolerating ones that are
// already registered.
func registerCollectors(registerer prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

func (m *MetricsListener) OnStart(*Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Starts++
	m.snapshot.LastUpdatedAt = time.Now()
	m.lifecycleTotal.WithLabelValues("start").Inc()
	return nil
}

func (m *MetricsListener) OnConnect(_ *Server, client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected[client.ID()] = time.Now()
	m.snapshot.ConnectionsTotal++
	m.snapshot.ConnectionsCurrent = uint64(len(m.connected))
	m.snapshot.LastUpdatedAt = time.Now()

	m.connectionsTotal.Inc()
	m.connectionsCurrent.Set(float64(len(m.connected)))
	return nil
}

func (m *MetricsListener) OnReceive(_ *Server, _ *Client, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.MessagesReceived++
	m.snapshot.BytesReceived += uint64(len(data))
	m.snapshot.LastUpdatedAt = time.Now()

	m.messagesTotal.Inc()
	m.bytesTotal.Add(float64(len(data)))
	return nil
}

func (m *MetricsListener) OnClose(_ *Server, client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if since, ok := m.connected[client.ID()]; ok {
		m.durationHist.Observe(time.Since(since).Seconds())
		delete(m.connected, client.ID())
	}
	m.snapshot.ClosedTotal++
	m.snapshot.ConnectionsCurrent = uint64(len(m.connected))
	m.snapshot.LastUpdatedAt = time.Now()

	m.closedTotal.Inc()
	m.connectionsCurrent.Set(float64(len(m.connected)))
	return nil
}

func (m *MetricsListener) OnShutdown(*Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Shutdowns++
	m.snapshot.LastUpdatedAt = time.Now()
	m.lifecycleTotal.WithLabelValues("shutdown").Inc()
	return nil
}

// Snapshot returns a copy of the counters.
func (m *MetricsListener) Snapshot() ConnectionMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
