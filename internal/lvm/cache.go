package lvm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jbweber/strata/internal/logger"
)

// lvsFields is the column list requested from lvs, in output order.
const lvsFields = "vg_name,pool_lv,name,lv_size,data_percent,lv_attr,origin"

// Entry describes one logical volume.
type Entry struct {
	Size   int64  // bytes
	Usage  int64  // bytes in use, derived from data_percent
	PoolLV string // thin pool backing the volume, empty for pools themselves
	Attr   string // raw lv_attr
	Origin string // lv this one was snapshotted from, without volume group
}

// Attrs decodes the raw lv_attr. Malformed attributes decode to the zero Attr.
func (e Entry) Attrs() Attr {
	a, _ := ParseAttr(e.Attr)
	return a
}

// Cache is a point-in-time view of the logical volumes known to lvm, keyed
// by "vg/lv". Readers may see a view that is stale by one command; a
// refresh replaces the whole view at once or leaves it untouched.
type Cache struct {
	runner  Runner
	elevate bool
	log     logger.Logger

	refreshMu sync.Mutex
	mu        sync.RWMutex
	entries   map[string]Entry
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheElevation forces sudo on or off for the lvs query.
func WithCacheElevation(elevate bool) CacheOption {
	return func(c *Cache) { c.elevate = elevate }
}

// WithCacheLogger sets the cache logger.
func WithCacheLogger(l logger.Logger) CacheOption {
	return func(c *Cache) { c.log = l }
}

// NewCache returns an empty cache. Call Refresh to populate it.
func NewCache(runner Runner, opts ...CacheOption) *Cache {
	c := &Cache{
		runner:  runner,
		elevate: NeedsElevation(),
		log:     logger.Log,
		entries: map[string]Entry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.AddContext(c.log, logger.Ctx{"component": "lvm-cache"})
	return c
}

// QueryCommand returns the argv used to enumerate logical volumes.
func (c *Cache) QueryCommand() []string {
	argv := []string{"lvs", "--noheadings", "-o", lvsFields, "--units", "b", "--separator", ";"}
	if c.elevate {
		argv = append([]string{"sudo"}, argv...)
	}
	return argv
}

// Refresh re-reads every logical volume. On failure the previous view is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	argv := c.QueryCommand()
	res, err := c.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return fmt.Errorf("failed to query logical volumes: %w", err)
	}
	if res.ExitCode != 0 {
		return &CommandError{Action: "query", Args: argv, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	if msg := strings.TrimSpace(res.Stderr); msg != "" {
		c.log.Warn(msg)
	}

	entries, err := ParseLVS(res.Stdout)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	return nil
}

// ParseLVS parses the output of the lvs query. Records missing a volume
// group, name, size or data_percent are skipped.
func ParseLVS(out string) (map[string]Entry, error) {
	entries := map[string]Entry{}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, ";", 7)
		if len(fields) != 7 {
			return nil, fmt.Errorf("malformed lvs record %q", line)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		vg, poolLV, name, size, percent, attr, origin :=
			fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6]
		if vg == "" || name == "" || size == "" || percent == "" {
			continue
		}

		bytes, err := strconv.ParseInt(strings.TrimSuffix(size, "B"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid size in lvs record %q: %w", line, err)
		}
		pct, err := strconv.ParseFloat(percent, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid data_percent in lvs record %q: %w", line, err)
		}

		entries[vg+"/"+name] = Entry{
			Size:   bytes,
			Usage:  int64(float64(bytes) / 100 * pct),
			PoolLV: poolLV,
			Attr:   attr,
			Origin: origin,
		}
	}

	return entries, nil
}

// Get returns the entry for name ("vg/lv").
func (c *Cache) Get(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	return e, ok
}

// Has reports whether name is known.
func (c *Cache) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Names returns every known name, sorted.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the current view.
func (c *Cache) Snapshot() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
