package runtime

import (
	"fmt"
	"testing"

	"github.com/justapithecus/loom/classify"
	"github.com/justapithecus/loom/resolve"
	"github.com/justapithecus/loom/types"
)

// seqMinter mints deterministic kind-numbered ids.
type seqMinter struct{ n int }

func (m *seqMinter) MintID(kind types.ArtifactKind, contextID string) (string, error) {
	m.n++
	return fmt.Sprintf("%s-%d", kind, m.n), nil
}

func newTestReassembler(t *testing.T) (*Reassembler, *[]*types.Artifact) {
	t.Helper()
	resolver := resolve.NewResolver(&seqMinter{}, resolve.WithContext("chat-1", "msg-1", ""))
	r := NewReassembler(resolver, nil, nil)
	var emitted []*types.Artifact
	r.AddSink(ArtifactSinkFunc(func(a *types.Artifact) { emitted = append(emitted, a) }))
	return r, &emitted
}

func TestReassembler_StreamedCodeArtifact(t *testing.T) {
	r, emitted := newTestReassembler(t)

	code := classify.Decision{Kind: types.KindCode}
	frags := []*types.InboundFragment{
		{Role: types.RoleAssistant, Kind: types.FragmentCode, Format: "python", IsStart: true},
		{Role: types.RoleAssistant, Kind: types.FragmentCode, Content: "print(1)"},
		{Role: types.RoleAssistant, Kind: types.FragmentCode, IsEnd: true},
	}

	for i, frag := range frags[:2] {
		done, err := r.Ingest("chat-1", frag, code)
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
		if done != nil {
			t.Fatalf("ingest %d: finalized early", i)
		}
	}
	done, err := r.Ingest("chat-1", frags[2], code)
	if err != nil {
		t.Fatalf("ingest end: %v", err)
	}
	if done == nil {
		t.Fatal("end marker must finalize")
	}
	if done.Content != "print(1)" {
		t.Errorf("content = %q, want print(1)", done.Content)
	}
	if done.Kind != types.KindCode || !done.Complete {
		t.Errorf("artifact %+v not a complete code artifact", done)
	}
	if done.MessageID != "msg-1" || done.ParentID != "msg-1" {
		t.Errorf("linkage %q/%q, want msg-1/msg-1", done.MessageID, done.ParentID)
	}
	if len(*emitted) != 1 {
		t.Errorf("emitted %d artifacts, want 1", len(*emitted))
	}
}

func TestReassembler_ContentMonotonicAndChunkCount(t *testing.T) {
	r, _ := newTestReassembler(t)
	out := classify.Decision{Kind: types.KindOutput}

	if _, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleComputer, Kind: types.FragmentConsole, Content: "a", BackendID: "x", IsStart: true,
	}, out); err != nil {
		t.Fatal(err)
	}
	done, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleComputer, Kind: types.FragmentConsole, Content: "b", BackendID: "x", IsEnd: true,
	}, out)
	if err != nil {
		t.Fatal(err)
	}
	if done == nil || done.Content != "ab" {
		t.Fatalf("content = %v, want ab", done)
	}
	if done.ChunkCount != 2 {
		t.Errorf("chunkCount = %d, want 2", done.ChunkCount)
	}
}

func TestReassembler_SelfContainedFragment(t *testing.T) {
	r, emitted := newTestReassembler(t)

	done, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleComputer, Kind: types.FragmentConsole, Content: "one-shot",
	}, classify.Decision{Kind: types.KindOutput})
	if err != nil {
		t.Fatal(err)
	}
	if done == nil || !done.Complete {
		t.Fatal("self-contained fragment must finalize immediately")
	}
	if done.ChunkCount != 1 || done.Content != "one-shot" {
		t.Errorf("artifact %+v", done)
	}
	if len(r.OpenIDs()) != 0 {
		t.Error("no streaming phase expected")
	}
	if len(*emitted) != 1 {
		t.Errorf("emitted %d, want 1", len(*emitted))
	}
}

func TestReassembler_MediaBypassesStreaming(t *testing.T) {
	r, _ := newTestReassembler(t)

	done, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleComputer, Kind: types.FragmentConsole,
		// Start marker present, but media still finalizes in one step.
		IsStart: true,
	}, classify.Decision{
		Kind:  types.KindMedia,
		Media: []types.MediaItem{{Kind: types.MediaImage, Source: "a.png"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if done == nil || !done.Complete {
		t.Fatal("media must be constructed and finalized in a single step")
	}
	if len(done.Media) != 1 {
		t.Errorf("media payload lost: %+v", done)
	}
}

func TestReassembler_PostCompleteUpsert(t *testing.T) {
	r, emitted := newTestReassembler(t)
	out := classify.Decision{Kind: types.KindOutput}

	done, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleComputer, Kind: types.FragmentConsole,
		Content: "final", BackendID: "x",
	}, out)
	if err != nil || done == nil {
		t.Fatalf("setup: %v %v", done, err)
	}
	firstID := done.ID

	// Malformed sender keeps talking about a finished artifact.
	update, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleComputer, Kind: types.FragmentConsole,
		Content: "+more", BackendID: "x",
	}, out)
	if err != nil {
		t.Fatal(err)
	}
	if update == nil {
		t.Fatal("post-complete content must re-emit as an update")
	}
	if update.ID != firstID {
		t.Errorf("upsert changed identity: %q -> %q", firstID, update.ID)
	}
	if update.Content != "final+more" {
		t.Errorf("content = %q, want final+more", update.Content)
	}
	if len(*emitted) != 2 {
		t.Errorf("emitted %d, want finalize + upsert", len(*emitted))
	}
}

func TestReassembler_KindAndParentImmutableAcrossFragments(t *testing.T) {
	r, _ := newTestReassembler(t)
	out := classify.Decision{Kind: types.KindOutput}

	if _, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleComputer, Kind: types.FragmentConsole, Content: "a", BackendID: "x", IsStart: true,
	}, out); err != nil {
		t.Fatal(err)
	}
	done, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleComputer, Kind: types.FragmentConsole, Content: "b", BackendID: "x",
		Format: "html", IsEnd: true, // late format change must not rewrite the artifact
	}, out)
	if err != nil {
		t.Fatal(err)
	}
	if done.Kind != types.KindOutput {
		t.Errorf("kind mutated to %q", done.Kind)
	}
	if done.Format != "" {
		t.Errorf("format mutated to %q after creation", done.Format)
	}
}

func TestReassembler_StartWhileOpenParksPrevious(t *testing.T) {
	r, _ := newTestReassembler(t)
	code := classify.Decision{Kind: types.KindCode}

	if _, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleAssistant, Kind: types.FragmentCode, Content: "a", IsStart: true,
	}, code); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleAssistant, Kind: types.FragmentCode, Content: "b", IsStart: true,
	}, code); err != nil {
		t.Fatal(err)
	}

	// Both artifacts exist, the first parked permanently open.
	if got := len(r.OpenIDs()); got != 2 {
		t.Errorf("open artifacts = %d, want 2", got)
	}

	done, err := r.Ingest("chat-1", &types.InboundFragment{
		Role: types.RoleAssistant, Kind: types.FragmentCode, IsEnd: true,
	}, code)
	if err != nil {
		t.Fatal(err)
	}
	if done == nil || done.Content != "b" {
		t.Fatalf("end must close the newer artifact, got %+v", done)
	}
}
