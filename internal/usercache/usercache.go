// Package usercache is a read-only radio-id -> callsign lookup table,
// populated from a local CSV file at startup and refreshed by sighting.
package usercache

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Entry is one cached radio-id -> callsign mapping with its expiry.
type Entry struct {
	RadioID  uint32
	Callsign string
	Expires  time.Time
}

// Cache is a concurrent-safe radio-id lookup table. The initial CSV load
// runs in cmd/hblink4 before the server starts; the periodic expiry sweep
// runs on the server's event loop, driven by its user-cache expiry ticker.
type Cache struct {
	entries *xsync.Map[uint32, Entry]
	ttl     time.Duration
}

// New builds an empty Cache with the given per-entry TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{entries: xsync.NewMap[uint32, Entry](), ttl: ttl}
}

// LoadCSV populates the cache from a local CSV file in the RadioID.net
// user.csv layout: RADIO_ID,CALLSIGN,FIRST_NAME,LAST_NAME,CITY,STATE,COUNTRY,...
func (c *Cache) LoadCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("usercache: opening %s: %w", path, err)
	}
	defer f.Close()
	return c.loadFrom(f)
}

func (c *Cache) loadFrom(r io.Reader) (int, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("usercache: reading header: %w", err)
	}

	now := time.Now()
	expires := now.Add(c.ttl)
	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) < 2 {
			continue
		}
		id, err := strconv.ParseUint(record[0], 10, 32)
		if err != nil {
			continue
		}
		c.entries.Store(uint32(id), Entry{
			RadioID:  uint32(id),
			Callsign: record[1],
			Expires:  expires,
		})
		count++
	}
	return count, nil
}

// Lookup returns the callsign for radio-id, if present and not expired.
func (c *Cache) Lookup(radioID uint32) (string, bool) {
	e, ok := c.entries.Load(radioID)
	if !ok || time.Now().After(e.Expires) {
		return "", false
	}
	return e.Callsign, true
}

// Refresh extends an entry's expiry on sighting, the "refreshed on sighting"
// behavior required of the cache. If the entry doesn't exist it is created
// with an empty callsign, to be backfilled by a later CSV load. Only the
// owning loop goroutine calls this, so a plain load-then-store is safe.
func (c *Cache) Refresh(radioID uint32, now time.Time) {
	e, ok := c.entries.Load(radioID)
	if !ok {
		e = Entry{RadioID: radioID}
	}
	e.Expires = now.Add(c.ttl)
	c.entries.Store(radioID, e)
}

// Sweep removes entries whose expiry has passed. Intended to be called from
// the user-cache expiry timer job (default every 60s).
func (c *Cache) Sweep(now time.Time) int {
	removed := 0
	c.entries.Range(func(id uint32, e Entry) bool {
		if now.After(e.Expires) {
			c.entries.Delete(id)
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int { return c.entries.Size() }
