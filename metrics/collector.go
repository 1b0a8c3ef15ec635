// Package metrics provides pipeline metrics collection.
//
// The Collector accumulates counters for one ingest session. It is a
// leaf package with no internal dependencies. All increment methods are
// nil-receiver safe so call sites never guard against a missing collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all pipeline counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Ingestion
	FragmentsReceived int64            `json:"fragments_received"`
	FragmentsSkipped  int64            `json:"fragments_skipped"`
	SkippedByReason   map[string]int64 `json:"skipped_by_reason,omitempty"`
	FrameDecodeErrors int64            `json:"frame_decode_errors"`

	// Reassembly
	ArtifactsOpened    int64 `json:"artifacts_opened"`
	ArtifactsFinalized int64 `json:"artifacts_finalized"`
	ArtifactsUpserted  int64 `json:"artifacts_upserted"`

	// Classification
	MediaParseFallbacks int64 `json:"media_parse_fallbacks"`

	// Correlation
	SessionsLoaded    int64 `json:"sessions_loaded"`
	StoreLoadFailures int64 `json:"store_load_failures"`

	// Dimensions (informational, set at construction)
	ChatID string `json:"chat_id,omitempty"`
}

// Collector accumulates pipeline metrics.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	fragmentsReceived int64
	fragmentsSkipped  int64
	skippedByReason   map[string]int64
	frameDecodeErrors int64

	artifactsOpened    int64
	artifactsFinalized int64
	artifactsUpserted  int64

	mediaParseFallbacks int64

	sessionsLoaded    int64
	storeLoadFailures int64

	chatID string
}

// NewCollector creates a Collector. chatID is an optional dimension.
func NewCollector(chatID string) *Collector {
	return &Collector{
		skippedByReason: make(map[string]int64),
		chatID:          chatID,
	}
}

// IncFragmentsReceived records one inbound fragment.
func (c *Collector) IncFragmentsReceived() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fragmentsReceived++
	c.mu.Unlock()
}

// IncFragmentsSkipped records a skipped fragment with its reason.
func (c *Collector) IncFragmentsSkipped(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fragmentsSkipped++
	c.skippedByReason[reason]++
	c.mu.Unlock()
}

// IncFrameDecodeErrors records a frame decode failure.
func (c *Collector) IncFrameDecodeErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.frameDecodeErrors++
	c.mu.Unlock()
}

// IncArtifactsOpened records a first fragment opening a new artifact.
func (c *Collector) IncArtifactsOpened() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsOpened++
	c.mu.Unlock()
}

// IncArtifactsFinalized records an artifact reaching the complete state.
func (c *Collector) IncArtifactsFinalized() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsFinalized++
	c.mu.Unlock()
}

// IncArtifactsUpserted records a post-complete fragment re-emitting an
// artifact as an update.
func (c *Collector) IncArtifactsUpserted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsUpserted++
	c.mu.Unlock()
}

// IncMediaParseFallbacks records a media payload that needed the
// lenient normalization pass or fell through to output.
func (c *Collector) IncMediaParseFallbacks() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.mediaParseFallbacks++
	c.mu.Unlock()
}

// IncSessionsLoaded records a bulk session load from the store.
func (c *Collector) IncSessionsLoaded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsLoaded++
	c.mu.Unlock()
}

// IncStoreLoadFailures records a failed bulk session load.
func (c *Collector) IncStoreLoadFailures() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.storeLoadFailures++
	c.mu.Unlock()
}

// Snapshot returns an immutable copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{SkippedByReason: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byReason := make(map[string]int64, len(c.skippedByReason))
	for k, v := range c.skippedByReason {
		byReason[k] = v
	}
	return Snapshot{
		FragmentsReceived:   c.fragmentsReceived,
		FragmentsSkipped:    c.fragmentsSkipped,
		SkippedByReason:     byReason,
		FrameDecodeErrors:   c.frameDecodeErrors,
		ArtifactsOpened:     c.artifactsOpened,
		ArtifactsFinalized:  c.artifactsFinalized,
		ArtifactsUpserted:   c.artifactsUpserted,
		MediaParseFallbacks: c.mediaParseFallbacks,
		SessionsLoaded:      c.sessionsLoaded,
		StoreLoadFailures:   c.storeLoadFailures,
		ChatID:              c.chatID,
	}
}
