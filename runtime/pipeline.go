package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/loom/classify"
	"github.com/justapithecus/loom/ipc"
	"github.com/justapithecus/loom/log"
	"github.com/justapithecus/loom/metrics"
	"github.com/justapithecus/loom/resolve"
	"github.com/justapithecus/loom/types"
)

// SkipReason classifies why a fragment did not become artifact content.
type SkipReason string

// Skip reason constants.
const (
	// SkipForeignRecipient marks inter-agent traffic not addressed to the user.
	SkipForeignRecipient SkipReason = "foreign_recipient"
	// SkipDecodeFailure marks an undecodable frame payload.
	SkipDecodeFailure SkipReason = "decode_failure"
	// SkipIdentityFailure marks an identifier authority failure.
	SkipIdentityFailure SkipReason = "identity_failure"
	// SkipNoChat marks a fragment with no resolvable session.
	SkipNoChat SkipReason = "no_chat"
)

// SkippedFragment is the structured signal replacing silent
// catch-and-continue: degraded-path behavior is observable and
// assertable instead of swallowed.
type SkippedFragment struct {
	Reason   SkipReason
	Fragment *types.InboundFragment
	Err      error
}

// PipelineErrorKind classifies fatal pipeline errors.
type PipelineErrorKind int

const (
	// PipelineErrorStream indicates unrecoverable framing (truncation,
	// oversized frame).
	PipelineErrorStream PipelineErrorKind = iota
	// PipelineErrorCanceled indicates context cancellation.
	PipelineErrorCanceled
)

// PipelineError is a fatal ingest loop error.
type PipelineError struct {
	Kind PipelineErrorKind
	Err  error
}

func (e *PipelineError) Error() string { return e.Err.Error() }
func (e *PipelineError) Unwrap() error { return e.Err }

// IsStreamError returns true if the error is a fatal stream/frame error.
func IsStreamError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == PipelineErrorStream
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == PipelineErrorCanceled
}

// Config configures a Pipeline.
type Config struct {
	// ChatID is the default owning session for fragments that do not
	// carry their own chat id.
	ChatID string
	// Resolver provides identity and linkage. Required.
	Resolver *resolve.Resolver
	// Logger defaults to a pipeline-tagged logger.
	Logger *log.Logger
	// Collector is optional; nil disables metrics.
	Collector *metrics.Collector
}

// Pipeline is the single-threaded correlation loop: decode one frame,
// classify it, resolve identity, reassemble, hand finalized artifacts
// to the registered sinks. One fragment is in flight at a time; every
// stage is a synchronous transformation over that one event.
type Pipeline struct {
	chatID      string
	resolver    *resolve.Resolver
	reassembler *Reassembler
	logger      *log.Logger
	collector   *metrics.Collector
	skipSinks   []func(SkippedFragment)
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger("pipeline")
	}
	return &Pipeline{
		chatID:      cfg.ChatID,
		resolver:    cfg.Resolver,
		reassembler: NewReassembler(cfg.Resolver, logger, cfg.Collector),
		logger:      logger,
		collector:   cfg.Collector,
	}
}

// Reassembler exposes the reassembler for sink registration.
func (p *Pipeline) Reassembler() *Reassembler { return p.reassembler }

// AddArtifactSink registers a sink for finalized artifacts.
func (p *Pipeline) AddArtifactSink(sink ArtifactSink) {
	p.reassembler.AddSink(sink)
}

// AddSkipSink registers an observer for skipped fragments.
func (p *Pipeline) AddSkipSink(fn func(SkippedFragment)) {
	p.skipSinks = append(p.skipSinks, fn)
}

// Run ingests frames from reader until EOF or a fatal error.
// Returns:
//   - nil: stream ended cleanly (EOF)
//   - *PipelineError with Kind=PipelineErrorStream: unrecoverable framing
//   - *PipelineError with Kind=PipelineErrorCanceled: context canceled
//
// Decode failures and per-fragment degradations are skip signals, not
// errors: one bad fragment must never block subsequent legitimate ones.
func (p *Pipeline) Run(ctx context.Context, reader io.Reader) error {
	decoder := ipc.NewFrameDecoder(reader)
	for {
		select {
		case <-ctx.Done():
			return &PipelineError{Kind: PipelineErrorCanceled, Err: ctx.Err()}
		default:
		}

		payload, err := decoder.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			p.logger.Error("frame error", map[string]any{"error": err.Error()})
			p.collector.IncFrameDecodeErrors()
			return &PipelineError{
				Kind: PipelineErrorStream,
				Err:  fmt.Errorf("frame error: %w", err),
			}
		}

		frag, err := ipc.DecodeFragment(payload)
		if err != nil {
			// Frame boundary intact: skip the payload and keep reading.
			p.collector.IncFrameDecodeErrors()
			p.skip(SkippedFragment{Reason: SkipDecodeFailure, Err: err})
			continue
		}

		p.HandleFragment(frag)
	}
}

// HandleFragment routes one decoded fragment through the pipeline.
// All failure modes degrade to skip signals; the method never panics
// and never returns an error, because it sits on the live best-effort
// update path of the enclosing message loop.
func (p *Pipeline) HandleFragment(frag *types.InboundFragment) {
	p.collector.IncFragmentsReceived()

	chatID := frag.ChatID
	if chatID == "" {
		chatID = p.chatID
	}

	// Turn markers mutate their session's resolver context and carry no
	// artifact content.
	if p.resolver.Observe(chatID, frag) {
		return
	}

	decision := classify.Classify(frag)
	if decision.MediaFallback {
		p.collector.IncMediaParseFallbacks()
	}
	if decision.Discard {
		p.collector.IncFragmentsSkipped(string(SkipForeignRecipient))
		p.skip(SkippedFragment{Reason: SkipForeignRecipient, Fragment: frag})
		return
	}

	if chatID == "" {
		p.collector.IncFragmentsSkipped(string(SkipNoChat))
		p.skip(SkippedFragment{Reason: SkipNoChat, Fragment: frag})
		return
	}

	artifact, err := p.reassembler.Ingest(chatID, frag, decision)
	if err != nil {
		p.collector.IncFragmentsSkipped(string(SkipIdentityFailure))
		p.skip(SkippedFragment{Reason: SkipIdentityFailure, Fragment: frag, Err: err})
		return
	}

	if artifact != nil && artifact.Kind == types.KindCode && artifact.Complete {
		p.resolver.NoteCodeFinalized(chatID, artifact.ID)
	}
}

func (p *Pipeline) skip(s SkippedFragment) {
	fields := map[string]any{"reason": string(s.Reason)}
	if s.Err != nil {
		fields["error"] = s.Err.Error()
	}
	p.logger.Warn("fragment skipped", fields)
	for _, fn := range p.skipSinks {
		fn(s)
	}
}
