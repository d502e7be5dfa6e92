package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"

	"thoughtcap/model"
)

const transcriptPrefix = "transcript/"

// TranscriptCache holds fetched transcripts for the life of the process.
// Nothing touches disk.
type TranscriptCache struct {
	db   *badger.DB
	log  zerolog.Logger
	once sync.Once
}

func OpenTranscriptCache(log zerolog.Logger) (*TranscriptCache, error) {
	log = log.With().Str("component", "cache").Logger()
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(badgerLogger{log}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open transcript cache: %w", err)
	}
	return &TranscriptCache{db: db, log: log}, nil
}

func cacheKey(filename string) []byte {
	return []byte(transcriptPrefix + filename)
}

func (c *TranscriptCache) Get(filename string) (*model.Transcription, bool) {
	var t model.Transcription
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(filename))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("filename", filename).Msg("cache read failed")
		return nil, false
	}
	return &t, true
}

func (c *TranscriptCache) Put(filename string, t *model.Transcription) {
	if t == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		c.log.Warn().Err(err).Str("filename", filename).Msg("cache encode failed")
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(filename), data)
	})
	if err != nil {
		c.log.Warn().Err(err).Str("filename", filename).Msg("cache write failed")
	}
}

func (c *TranscriptCache) Evict(filename string) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cacheKey(filename))
	})
	if err != nil {
		c.log.Warn().Err(err).Str("filename", filename).Msg("cache evict failed")
	}
}

// Len counts cached transcripts.
func (c *TranscriptCache) Len() int {
	n := 0
	c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(transcriptPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

func (c *TranscriptCache) Close() error {
	var err error
	c.once.Do(func() { err = c.db.Close() })
	return err
}

// badgerLogger routes badger's internal logging into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.log.Error().Msgf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...any) { l.log.Warn().Msgf(f, v...) }
func (l badgerLogger) Infof(f string, v ...any)    { l.log.Debug().Msgf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...any)   { l.log.Trace().Msgf(f, v...) }
