package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"thoughtcap/events"
	"thoughtcap/model"
)

// Backend is the part of the API the catalog reads and mutates.
type Backend interface {
	List(ctx context.Context) ([]model.Recording, error)
	Delete(ctx context.Context, filename string) error
}

type Options struct {
	Cache  *TranscriptCache
	Events events.Publisher
	Log    zerolog.Logger
}

// Catalog is the in-memory list of known recordings. Stats are always
// derived from the list, never stored.
type Catalog struct {
	backend Backend
	cache   *TranscriptCache
	events  events.Publisher
	log     zerolog.Logger

	mu            sync.Mutex
	recs          []model.Recording
	selected      string
	issued        uint64
	applied       uint64
	authoritative bool
}

func New(backend Backend, opts Options) *Catalog {
	if opts.Events == nil {
		opts.Events = events.Nop
	}
	return &Catalog{
		backend: backend,
		cache:   opts.Cache,
		events:  opts.Events,
		log:     opts.Log.With().Str("component", "catalog").Logger(),
	}
}

// Reload replaces the contents with the backend's list. Responses to
// requests older than the last applied one are discarded. A failed reload
// empties the catalog and marks it non-authoritative.
func (c *Catalog) Reload(ctx context.Context) []model.Recording {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	recs, err := c.backend.List(ctx)

	c.mu.Lock()
	if applied := c.applied; seq <= applied {
		out := c.snapshotLocked()
		c.mu.Unlock()
		c.log.Debug().Uint64("seq", seq).Uint64("applied", applied).Msg("stale reload discarded")
		return out
	}
	c.applied = seq
	if err != nil {
		c.recs = nil
		c.authoritative = false
	} else {
		c.recs = recs
		c.authoritative = true
	}
	out := c.snapshotLocked()
	stats := model.ComputeStats(c.recs)
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Uint64("seq", seq).Msg("reload failed, catalog emptied")
	} else {
		c.log.Debug().Uint64("seq", seq).Int("count", len(out)).Msg("reloaded")
	}
	c.publishStats(stats)
	return out
}

func (c *Catalog) snapshotLocked() []model.Recording {
	out := make([]model.Recording, len(c.recs))
	copy(out, c.recs)
	return out
}

// Authoritative is false after a failed reload: an empty list then means
// "unknown", not "no recordings".
func (c *Catalog) Authoritative() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authoritative
}

func (c *Catalog) Recordings() []model.Recording {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Catalog) indexLocked(filename string) int {
	for i := range c.recs {
		if c.recs[i].Filename == filename {
			return i
		}
	}
	return -1
}

func (c *Catalog) Get(filename string) (model.Recording, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(filename); i >= 0 {
		return c.recs[i], true
	}
	return model.Recording{}, false
}

// Select marks filename as the selected recording. Unknown names leave the
// selection unchanged.
func (c *Catalog) Select(filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexLocked(filename) < 0 {
		return false
	}
	c.selected = filename
	return true
}

func (c *Catalog) Selected() (model.Recording, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == "" {
		return model.Recording{}, false
	}
	if i := c.indexLocked(c.selected); i >= 0 {
		return c.recs[i], true
	}
	return model.Recording{}, false
}

// Delete removes filename on the backend and then locally. On failure the
// catalog is left untouched.
func (c *Catalog) Delete(ctx context.Context, filename string) error {
	if err := c.backend.Delete(ctx, filename); err != nil {
		c.log.Error().Err(err).Str("filename", filename).Msg("delete failed")
		return fmt.Errorf("delete %s: %w", filename, err)
	}

	c.mu.Lock()
	if i := c.indexLocked(filename); i >= 0 {
		c.recs = append(c.recs[:i:i], c.recs[i+1:]...)
	}
	if c.selected == filename {
		c.selected = ""
	}
	stats := model.ComputeStats(c.recs)
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Evict(filename)
	}
	c.log.Info().Str("filename", filename).Msg("deleted")
	c.publishStats(stats)
	return nil
}

// MarkTranscribed flips the flag in place. It reports whether filename is
// in the catalog.
func (c *Catalog) MarkTranscribed(filename string) bool {
	c.mu.Lock()
	i := c.indexLocked(filename)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	changed := !c.recs[i].HasTranscription
	c.recs[i].HasTranscription = true
	stats := model.ComputeStats(c.recs)
	c.mu.Unlock()

	if changed {
		c.publishStats(stats)
	}
	return true
}

func (c *Catalog) Stats() model.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.ComputeStats(c.recs)
}

func (c *Catalog) publishStats(s model.Stats) {
	c.events.Publish(events.New(events.StatsUpdate, s))
}

// View renders the current catalog, selection and detail pane.
func (c *Catalog) View(detail DetailState) ViewModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Render(c.recs, c.selected, c.authoritative, detail)
}
