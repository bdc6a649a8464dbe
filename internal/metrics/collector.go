// Package metrics exposes HBlink4 runtime counters as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector registers and updates the Prometheus metrics for one server
// instance. Unlike a hand-rolled counter map, every field here is a real
// prometheus.Collector so it can be scraped through promhttp.Handler.
type Collector struct {
	registry *prometheus.Registry

	peersConnected   prometheus.Gauge
	peersTotal       prometheus.Counter
	packetsReceived  *prometheus.CounterVec
	packetsSent      *prometheus.CounterVec
	bytesReceived    prometheus.Counter
	bytesSent        prometheus.Counter
	streamsActive    prometheus.Gauge
	streamsStarted   prometheus.Counter
	streamsContended *prometheus.CounterVec
	routingDenied    *prometheus.CounterVec
	talkgroupsActive *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers all metrics on a fresh
// registry.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.peersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hblink4", Subsystem: "peers", Name: "connected",
		Help: "Number of repeater peers currently in the CONNECTED state.",
	})
	c.peersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hblink4", Subsystem: "peers", Name: "total",
		Help: "Total repeater login attempts that reached CONNECTED.",
	})
	c.packetsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hblink4", Subsystem: "packets", Name: "received_total",
		Help: "Packets received, labeled by HomeBrew frame tag.",
	}, []string{"tag"})
	c.packetsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hblink4", Subsystem: "packets", Name: "sent_total",
		Help: "Packets sent, labeled by HomeBrew frame tag.",
	}, []string{"tag"})
	c.bytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hblink4", Subsystem: "io", Name: "bytes_received_total",
		Help: "Total bytes received over UDP.",
	})
	c.bytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hblink4", Subsystem: "io", Name: "bytes_sent_total",
		Help: "Total bytes sent over UDP.",
	})
	c.streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hblink4", Subsystem: "streams", Name: "active",
		Help: "Number of voice streams currently open (not yet ended or hung up).",
	})
	c.streamsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hblink4", Subsystem: "streams", Name: "started_total",
		Help: "Total voice streams started.",
	})
	c.streamsContended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hblink4", Subsystem: "streams", Name: "contended_total",
		Help: "Stream contention events, labeled by resolution.",
	}, []string{"outcome"})
	c.routingDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hblink4", Subsystem: "routing", Name: "denied_total",
		Help: "Packets denied by the access matcher, labeled by reason.",
	}, []string{"reason"})
	c.talkgroupsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hblink4", Subsystem: "talkgroups", Name: "active",
		Help: "Whether a talkgroup/timeslot pair currently has an active route (1) or not (0).",
	}, []string{"tgid", "slot"})

	c.registry.MustRegister(
		c.peersConnected, c.peersTotal,
		c.packetsReceived, c.packetsSent,
		c.bytesReceived, c.bytesSent,
		c.streamsActive, c.streamsStarted, c.streamsContended,
		c.routingDenied, c.talkgroupsActive,
	)
	return c
}

// Registry returns the underlying Prometheus registry, for wiring into
// promhttp.HandlerFor.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// PeerConnected records a repeater reaching CONNECTED.
func (c *Collector) PeerConnected() {
	c.peersTotal.Inc()
	c.peersConnected.Inc()
}

// PeerDisconnected records a repeater leaving CONNECTED.
func (c *Collector) PeerDisconnected() { c.peersConnected.Dec() }

// PacketReceived records an inbound frame by tag ("DMRD", "RPTL", ...).
func (c *Collector) PacketReceived(tag string, bytes int) {
	c.packetsReceived.WithLabelValues(tag).Inc()
	c.bytesReceived.Add(float64(bytes))
}

// PacketSent records an outbound frame by tag.
func (c *Collector) PacketSent(tag string, bytes int) {
	c.packetsSent.WithLabelValues(tag).Inc()
	c.bytesSent.Add(float64(bytes))
}

// StreamStarted records a new voice stream.
func (c *Collector) StreamStarted() {
	c.streamsStarted.Inc()
	c.streamsActive.Inc()
}

// StreamEnded records a stream leaving the active state (normal end, timeout,
// or displacement).
func (c *Collector) StreamEnded() { c.streamsActive.Dec() }

// StreamContended records a contention resolution outcome, e.g. "dropped" or
// "reclaimed" or "displaced_assumed".
func (c *Collector) StreamContended(outcome string) {
	c.streamsContended.WithLabelValues(outcome).Inc()
}

// RoutingDenied records an access-matcher denial, labeled by reason, e.g.
// "unauthorized", "blacklisted", "tg_not_allowed".
func (c *Collector) RoutingDenied(reason string) {
	c.routingDenied.WithLabelValues(reason).Inc()
}

// TalkgroupActive sets whether a tgid/slot pair has an active route.
func (c *Collector) TalkgroupActive(tgid uint32, slot int, active bool) {
	labels := prometheus.Labels{"tgid": itoa(tgid), "slot": itoa(uint32(slot))}
	if active {
		c.talkgroupsActive.With(labels).Set(1)
	} else {
		c.talkgroupsActive.With(labels).Set(0)
	}
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
