// Package cache coordinates the ephemeral and durable tiers in front of the
// synthesis backends.
//
// Resolve walks EphemeralLookup -> DurableLookup -> Synthesize -> Populate.
// The durable store is authoritative; the ephemeral store is a TTL'd
// accelerator whose failures are treated as misses. Entries are immutable:
// every write is create-if-absent, so concurrent resolvers of the same key
// may both synthesize but only one populate sticks.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/cachekey"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultTTL is the lifetime of an ephemeral cache entry.
const DefaultTTL = 72 * time.Hour

// Source tells where a resolved entry came from.
type Source int

// Entry sources.
const (
	SourceEmpty Source = iota
	SourceEphemeral
	SourceDurable
	SourceSynthesized
)

func (s Source) String() string {
	switch s {
	case SourceEphemeral:
		return "ephemeral"
	case SourceDurable:
		return "durable"
	case SourceSynthesized:
		return "synthesized"
	case SourceEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// SynthesizeFunc produces the result for a key missing from both tiers.
type SynthesizeFunc func(ctx context.Context) (*core.SynthesisResult, error)

// Config holds the ephemeral entry lifetime.
type Config struct {
	TTL time.Duration
}

// Resolution is the entry served for a key and its origin.
type Resolution struct {
	Entry  core.CacheEntry
	Source Source
}

// Coordinator implements the get-or-synthesize-or-populate protocol.
type Coordinator struct {
	ephemeral core.EphemeralStore
	durable   core.ObjectStore
	ttl       time.Duration
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// New creates a Coordinator over the two injected stores.
func New(
	ephemeral core.EphemeralStore,
	durable core.ObjectStore,
	cfg Config,
	log *logger.Logger,
	recorder *metrics.Metrics,
) *Coordinator {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Coordinator{
		ephemeral: ephemeral,
		durable:   durable,
		ttl:       ttl,
		log:       log,
		metrics:   recorder,
	}
}

// Resolve returns the entry for key, synthesizing and storing it on a miss
// in both tiers.
//
// Lookups go ephemeral first, then durable; a durable hit repopulates the
// ephemeral tier. Synthesized audio is written to the durable store before
// it is served, and a persist failure is returned rather than hidden.
// Ephemeral read or write failures only degrade the cache and are logged.
// Empty audio is served as an empty entry and never stored.
func (c *Coordinator) Resolve(ctx context.Context, key cachekey.Key, synthesize SynthesizeFunc) (*Resolution, error) {
	entry, found := c.lookupEphemeral(ctx, key)
	if found {
		return &Resolution{Entry: *entry, Source: SourceEphemeral}, nil
	}

	source := SourceDurable

	entry, found = c.lookupDurable(ctx, key)
	if !found {
		result, err := synthesize(ctx)
		if err != nil {
			return nil, err
		}

		if result == nil || len(result.Audio) == 0 {
			return &Resolution{Entry: *core.EmptyEntry(), Source: SourceEmpty}, nil
		}

		err = c.persist(ctx, key, result)
		if err != nil {
			return nil, err
		}

		entry = newEntry(result.Audio, result.SpeechMarks)
		source = SourceSynthesized
	}

	c.populate(ctx, key, entry)

	return &Resolution{Entry: *entry, Source: source}, nil
}

func (c *Coordinator) lookupEphemeral(ctx context.Context, key cachekey.Key) (*core.CacheEntry, bool) {
	raw, found, err := c.ephemeral.Get(ctx, key.String())
	if err != nil {
		c.log.Warn("Ephemeral lookup for %s failed, treating as miss: %v", key, err)
		c.metrics.RecordCacheLookup(metrics.TierEphemeral, metrics.ResultError)

		return nil, false
	}

	if !found {
		c.metrics.RecordCacheLookup(metrics.TierEphemeral, metrics.ResultMiss)

		return nil, false
	}

	var entry core.CacheEntry

	err = json.Unmarshal(raw, &entry)
	if err != nil {
		c.log.Warn("Ignoring undecodable cache entry %s: %v", key, err)
		c.metrics.RecordCacheLookup(metrics.TierEphemeral, metrics.ResultError)

		return nil, false
	}

	if entry.SpeechMarks == nil {
		entry.SpeechMarks = []core.SpeechMark{}
	}

	c.metrics.RecordCacheLookup(metrics.TierEphemeral, metrics.ResultHit)

	return &entry, true
}

func (c *Coordinator) lookupDurable(ctx context.Context, key cachekey.Key) (*core.CacheEntry, bool) {
	exists, err := c.durable.Exists(ctx, key.AudioPath())
	if err != nil {
		c.log.Warn("Durable lookup for %s failed, falling through to synthesis: %v", key, err)
		c.metrics.RecordCacheLookup(metrics.TierDurable, metrics.ResultError)

		return nil, false
	}

	if !exists {
		c.metrics.RecordCacheLookup(metrics.TierDurable, metrics.ResultMiss)

		return nil, false
	}

	var (
		audio []byte
		marks []core.SpeechMark
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, downloadErr := c.durable.Download(groupCtx, key.AudioPath())
		if downloadErr != nil {
			return fmt.Errorf("failed to download audio for %s: %w", key, downloadErr)
		}

		audio = data

		return nil
	})

	group.Go(func() error {
		marks = c.downloadMarks(groupCtx, key)

		return nil
	})

	err = group.Wait()
	if err != nil {
		c.log.Warn("Durable download for %s failed, falling through to synthesis: %v", key, err)
		c.metrics.RecordCacheLookup(metrics.TierDurable, metrics.ResultError)

		return nil, false
	}

	c.metrics.RecordCacheLookup(metrics.TierDurable, metrics.ResultHit)

	return newEntry(audio, marks), true
}

// downloadMarks returns the stored marks for key. A missing or unreadable
// marks object yields no marks.
func (c *Coordinator) downloadMarks(ctx context.Context, key cachekey.Key) []core.SpeechMark {
	exists, err := c.durable.Exists(ctx, key.MarksPath())
	if err != nil {
		c.log.Warn("Failed to check speech marks for %s: %v", key, err)

		return nil
	}

	if !exists {
		return nil
	}

	data, err := c.durable.Download(ctx, key.MarksPath())
	if err != nil {
		c.log.Warn("Failed to download speech marks for %s: %v", key, err)

		return nil
	}

	var marks []core.SpeechMark

	err = json.Unmarshal(data, &marks)
	if err != nil {
		c.log.Warn("Ignoring undecodable speech marks for %s: %v", key, err)

		return nil
	}

	return marks
}

func (c *Coordinator) persist(ctx context.Context, key cachekey.Key, result *core.SynthesisResult) error {
	err := c.durable.Upload(ctx, key.AudioPath(), result.Audio, core.ContentTypeMP3)
	if err != nil {
		return fmt.Errorf("%w: failed to save audio %s: %w", core.ErrInternalCache, key.AudioPath(), storeError(err))
	}

	if len(result.SpeechMarks) == 0 {
		return nil
	}

	data, err := json.Marshal(result.SpeechMarks)
	if err != nil {
		return fmt.Errorf("%w: failed to encode speech marks: %w", core.ErrInternalCache, err)
	}

	err = c.durable.Upload(ctx, key.MarksPath(), data, core.ContentTypeJSON)
	if err != nil {
		return fmt.Errorf("%w: failed to save speech marks %s: %w", core.ErrInternalCache, key.MarksPath(), storeError(err))
	}

	return nil
}

func (c *Coordinator) populate(ctx context.Context, key cachekey.Key, entry *core.CacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn("Failed to encode cache entry %s: %v", key, err)

		return
	}

	stored, err := c.ephemeral.SetIfAbsent(ctx, key.String(), data, c.ttl)
	if err != nil {
		c.log.Warn("Failed to populate ephemeral cache for %s: %v", key, err)

		return
	}

	if !stored {
		c.log.Info("Cache entry %s already populated", key)
	}
}

func newEntry(audio []byte, marks []core.SpeechMark) *core.CacheEntry {
	if marks == nil {
		marks = []core.SpeechMark{}
	}

	return &core.CacheEntry{AudioHex: hex.EncodeToString(audio), SpeechMarks: marks}
}

func storeError(err error) error {
	if errors.Is(err, core.ErrStoreUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
}
