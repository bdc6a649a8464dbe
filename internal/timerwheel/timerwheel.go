// Package timerwheel holds the three periodic maintenance tickers the core
// loop multiplexes alongside UDP reads: peer timeouts, stream timeouts, and
// user-cache expiry. The core loop is single-threaded and cooperative
// (suspension points only at reads/writes/timers), so these tickers are not
// driven by their own goroutines that mutate shared state — they are
// exposed as channels for the loop's own select statement.
package timerwheel

import "time"

// Wheel bundles the three scan tickers with their own lifecycle.
type Wheel struct {
	PeerTimeout     *time.Ticker
	StreamTimeout   *time.Ticker
	UserCacheExpiry *time.Ticker
}

// Config sets each ticker's interval. A non-positive interval substitutes
// the spec default rather than disabling the scan, since all three are
// mandatory maintenance jobs.
type Config struct {
	PeerTimeoutInterval     time.Duration
	StreamTimeoutInterval   time.Duration // spec default: 1s
	UserCacheExpiryInterval time.Duration // spec default: 60s
}

const (
	defaultStreamTimeoutInterval   = time.Second
	defaultUserCacheExpiryInterval = 60 * time.Second
)

// New starts all three tickers immediately.
func New(cfg Config) *Wheel {
	streamInterval := cfg.StreamTimeoutInterval
	if streamInterval <= 0 {
		streamInterval = defaultStreamTimeoutInterval
	}
	cacheInterval := cfg.UserCacheExpiryInterval
	if cacheInterval <= 0 {
		cacheInterval = defaultUserCacheExpiryInterval
	}
	peerInterval := cfg.PeerTimeoutInterval
	if peerInterval <= 0 {
		peerInterval = 30 * time.Second
	}

	return &Wheel{
		PeerTimeout:     time.NewTicker(peerInterval),
		StreamTimeout:   time.NewTicker(streamInterval),
		UserCacheExpiry: time.NewTicker(cacheInterval),
	}
}

// Stop stops all three tickers. Safe to call once, at loop shutdown.
func (w *Wheel) Stop() {
	w.PeerTimeout.Stop()
	w.StreamTimeout.Stop()
	w.UserCacheExpiry.Stop()
}
