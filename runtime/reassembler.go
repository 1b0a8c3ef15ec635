// Package runtime implements the Loom correlation pipeline.
package runtime

import (
	"time"

	"github.com/justapithecus/loom/classify"
	"github.com/justapithecus/loom/log"
	"github.com/justapithecus/loom/metrics"
	"github.com/justapithecus/loom/resolve"
	"github.com/justapithecus/loom/types"
)

// ArtifactSink receives finalized (or re-emitted) artifacts.
// Emission is an upsert: a sink may see the same artifact id again if
// a malformed sender appends content after the end marker.
type ArtifactSink interface {
	ArtifactReady(artifact *types.Artifact)
}

// ArtifactSinkFunc adapts a function to the ArtifactSink interface.
type ArtifactSinkFunc func(artifact *types.Artifact)

// ArtifactReady calls f.
func (f ArtifactSinkFunc) ArtifactReady(artifact *types.Artifact) { f(artifact) }

// Reassembler accumulates content fragments per artifact id until an
// end-of-stream marker is seen, then finalizes the artifact and emits
// it to all registered sinks.
//
// State machine per artifact: absent -> open -> complete. Fragments for
// a given logical object arrive in send order; no reordering happens
// here. Only one fragment is ever in flight, so the reassembler holds
// no locks.
type Reassembler struct {
	resolver  *resolve.Resolver
	logger    *log.Logger
	collector *metrics.Collector

	// open maps stream keys to in-flight artifacts. The transport does
	// not echo minted ids back, so continuation fragments are matched
	// by the sender's own correlation id when present, else by kind:
	// at most one artifact of a kind streams at a time within a turn.
	open map[string]*types.Artifact
	// completed maps artifact ids (and backend ids) to finalized
	// artifacts, so post-complete fragments can append opportunistically.
	completed map[string]*types.Artifact

	sinks []ArtifactSink
}

// NewReassembler creates a reassembler bound to a resolver.
func NewReassembler(resolver *resolve.Resolver, logger *log.Logger, collector *metrics.Collector) *Reassembler {
	if logger == nil {
		logger = log.NewLogger("reassembler")
	}
	return &Reassembler{
		resolver:  resolver,
		logger:    logger,
		collector: collector,
		open:      make(map[string]*types.Artifact),
		completed: make(map[string]*types.Artifact),
	}
}

// AddSink registers a downstream sink for finalized artifacts.
func (r *Reassembler) AddSink(sink ArtifactSink) {
	r.sinks = append(r.sinks, sink)
}

// OpenIDs returns the ids of artifacts still waiting for an end marker.
// A producer that never sends one leaves the artifact permanently open;
// this is an accepted degraded state surfaced for observability only.
func (r *Reassembler) OpenIDs() []string {
	ids := make([]string, 0, len(r.open))
	for _, a := range r.open {
		ids = append(ids, a.ID)
	}
	return ids
}

// Ingest routes one classified fragment through the state machine.
// Returns the artifact when the fragment finalized (or re-emitted) one,
// nil when the fragment only opened or extended an in-flight artifact.
// The only error source is the identifier authority.
func (r *Reassembler) Ingest(chatID string, frag *types.InboundFragment, decision classify.Decision) (*types.Artifact, error) {
	// Media artifacts bypass streaming: sniffing needs the full payload,
	// so a media fragment is by construction self-contained.
	if decision.Kind == types.KindMedia {
		artifact, err := r.create(chatID, frag, decision)
		if err != nil {
			return nil, err
		}
		return r.finalize(streamKey(frag, decision), artifact), nil
	}

	key := streamKey(frag, decision)

	// Malformed-sender case: content for an already-complete artifact,
	// identifiable only through the sender's own correlation id.
	// Append opportunistically and re-emit as an update.
	if frag.BackendID != "" && r.open[key] == nil {
		if artifact, ok := r.completed[key]; ok {
			if frag.HasContent() {
				artifact.Content += frag.Text()
				artifact.ChunkCount++
				artifact.UpdatedAt = time.Now().UTC()
				r.collector.IncArtifactsUpserted()
				r.logger.Warn("content after end marker, re-emitting artifact", map[string]any{
					"artifact_id": artifact.ID,
				})
				r.emit(artifact)
				return artifact, nil
			}
			return nil, nil
		}
	}

	artifact, inFlight := r.open[key]
	if inFlight && frag.IsStart {
		// The sender opened a new object without ending the previous
		// one. The old artifact stays permanently open (accepted
		// degraded state); park it under its own id so the new stream
		// can claim the key.
		r.logger.Warn("start marker while artifact still open, parking", map[string]any{
			"artifact_id": artifact.ID,
		})
		r.open["parked:"+artifact.ID] = artifact
		delete(r.open, key)
		inFlight = false
	}
	if !inFlight {
		created, err := r.create(chatID, frag, decision)
		if err != nil {
			return nil, err
		}
		artifact = created

		// One-shot payload with no streaming phase: open -> complete in
		// a single step.
		if frag.SelfContained() {
			return r.finalize(key, artifact), nil
		}
		r.open[key] = artifact
		r.collector.IncArtifactsOpened()
		if frag.IsEnd {
			return r.finalize(key, artifact), nil
		}
		return nil, nil
	}

	if frag.HasContent() {
		artifact.Content += frag.Text()
		artifact.ChunkCount++
		artifact.UpdatedAt = time.Now().UTC()
	}
	if frag.IsEnd {
		return r.finalize(key, artifact), nil
	}
	return nil, nil
}

// create mints identity and builds the artifact record, seeding content
// with the first fragment's payload.
func (r *Reassembler) create(chatID string, frag *types.InboundFragment, decision classify.Decision) (*types.Artifact, error) {
	identity, err := r.resolver.Resolve(chatID, decision.Kind)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	artifact := &types.Artifact{
		ID:        identity.ArtifactID,
		BackendID: frag.BackendID,
		Kind:      decision.Kind,
		Format:    frag.Format,
		MessageID: identity.MessageID,
		ParentID:  identity.ParentID,
		ChatID:    chatID,
		Role:      frag.Role,
		Media:     decision.Media,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if frag.HasContent() {
		artifact.Content = frag.Text()
		artifact.ChunkCount = 1
	}
	return artifact, nil
}

// finalize marks the artifact complete, clears in-flight state and
// emits to all sinks.
func (r *Reassembler) finalize(key string, artifact *types.Artifact) *types.Artifact {
	artifact.Complete = true
	artifact.UpdatedAt = time.Now().UTC()
	delete(r.open, key)
	if artifact.BackendID != "" {
		r.completed["b:"+artifact.BackendID] = artifact
	}
	r.collector.IncArtifactsFinalized()
	r.emit(artifact)
	return artifact
}

func (r *Reassembler) emit(artifact *types.Artifact) {
	for _, sink := range r.sinks {
		sink.ArtifactReady(artifact)
	}
}

// streamKey matches continuation fragments to their in-flight artifact.
func streamKey(frag *types.InboundFragment, decision classify.Decision) string {
	if frag.BackendID != "" {
		return "b:" + frag.BackendID
	}
	return "k:" + string(decision.Kind)
}
