package resolve

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/justapithecus/loom/types"
)

// seqMinter mints deterministic ids for assertions.
type seqMinter struct {
	n    int
	fail bool
}

func (m *seqMinter) MintID(kind types.ArtifactKind, contextID string) (string, error) {
	if m.fail {
		return "", errors.New("registry unavailable")
	}
	m.n++
	return fmt.Sprintf("%s-%d", kind, m.n), nil
}

type stubTurns struct{ id string }

func (s stubTurns) LastAssistantMessageID(string) string { return s.id }

func TestObserve_TurnMarkers(t *testing.T) {
	r := NewResolver(&seqMinter{})

	start := &types.InboundFragment{
		Role: types.RoleAssistant, Kind: types.FragmentMessage,
		IsStart: true, MessageID: "msg-1",
	}
	if !r.Observe("chat-1", start) {
		t.Fatal("start marker should be consumed as context")
	}
	if r.CurrentMessageID("chat-1") != "msg-1" {
		t.Errorf("currentMessageID = %q, want msg-1", r.CurrentMessageID("chat-1"))
	}

	r.NoteCodeFinalized("chat-1", "code-1")
	if r.LastCodeArtifactID("chat-1") != "code-1" {
		t.Errorf("lastCodeArtifactID = %q, want code-1", r.LastCodeArtifactID("chat-1"))
	}

	end := &types.InboundFragment{
		Role: types.RoleAssistant, Kind: types.FragmentMessage, IsEnd: true,
	}
	if !r.Observe("chat-1", end) {
		t.Fatal("end marker should be consumed as context")
	}
	if r.CurrentMessageID("chat-1") != "" || r.LastCodeArtifactID("chat-1") != "" {
		t.Error("end marker must clear both context fields")
	}
}

func TestObserve_NonMarkerIgnored(t *testing.T) {
	r := NewResolver(&seqMinter{})
	frag := &types.InboundFragment{Role: types.RoleComputer, Kind: types.FragmentConsole, Content: "x"}
	if r.Observe("chat-1", frag) {
		t.Error("computer console fragment is not a turn marker")
	}
}

func TestResolve_ContextScopedPerChat(t *testing.T) {
	r := NewResolver(&seqMinter{})

	start := &types.InboundFragment{
		Role: types.RoleAssistant, Kind: types.FragmentMessage,
		IsStart: true, MessageID: "msg-chat1", ChatID: "chat-1",
	}
	r.Observe("chat-1", start)
	r.NoteCodeFinalized("chat-1", "code-1")

	// A second chat multiplexed over the same connection must not
	// inherit the first chat's turn or code linkage.
	id, err := r.Resolve("chat-2", types.KindOutput)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.MessageID == "msg-chat1" {
		t.Error("chat-2 output borrowed chat-1's message id")
	}
	if id.ParentID == "code-1" {
		t.Error("chat-2 output linked under chat-1's code artifact")
	}
	if !id.Degraded {
		t.Error("chat-2 has no context of its own, must be degraded")
	}

	// The first chat's context is untouched by the foreign resolve.
	id, err = r.Resolve("chat-1", types.KindOutput)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.MessageID != "msg-chat1" || id.ParentID != "code-1" {
		t.Errorf("chat-1 identity %+v, want msg-chat1/code-1", id)
	}
}

func TestObserve_EndMarkerClearsOnlyItsChat(t *testing.T) {
	r := NewResolver(&seqMinter{},
		WithContext("chat-1", "msg-1", "code-1"),
		WithContext("chat-2", "msg-2", "code-2"),
	)

	end := &types.InboundFragment{
		Role: types.RoleAssistant, Kind: types.FragmentMessage, IsEnd: true,
	}
	r.Observe("chat-1", end)

	if r.CurrentMessageID("chat-1") != "" {
		t.Error("chat-1 context not cleared by its end marker")
	}
	if r.CurrentMessageID("chat-2") != "msg-2" || r.LastCodeArtifactID("chat-2") != "code-2" {
		t.Error("chat-2 context must survive chat-1's end marker")
	}
}

func TestResolve_CodeScopedToTurn(t *testing.T) {
	r := NewResolver(&seqMinter{}, WithContext("chat-1", "msg-1", ""))

	id, err := r.Resolve("chat-1", types.KindCode)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.MessageID != "msg-1" || id.ParentID != "msg-1" {
		t.Errorf("code identity %+v, want message and parent msg-1", id)
	}
	if id.Degraded {
		t.Error("context was present, must not be degraded")
	}
	if !strings.HasPrefix(id.ArtifactID, "code-") {
		t.Errorf("artifact id %q not minted with code kind", id.ArtifactID)
	}
}

func TestResolve_OutputScopedToLastCode(t *testing.T) {
	r := NewResolver(&seqMinter{}, WithContext("chat-1", "msg-1", "code-7"))

	id, err := r.Resolve("chat-1", types.KindOutput)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.ParentID != "code-7" {
		t.Errorf("output parent = %q, want code-7 (last code artifact)", id.ParentID)
	}
	if id.MessageID != "msg-1" {
		t.Errorf("output message id = %q, want msg-1", id.MessageID)
	}
}

func TestResolve_OutputFallsBackToTurn(t *testing.T) {
	r := NewResolver(&seqMinter{}, WithContext("chat-1", "msg-1", ""))

	id, err := r.Resolve("chat-1", types.KindOutput)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.ParentID != "msg-1" {
		t.Errorf("output parent = %q, want msg-1 when no code artifact known", id.ParentID)
	}
}

func TestResolve_TurnSequenceReconstruction(t *testing.T) {
	r := NewResolver(&seqMinter{}, WithTurnSequence(stubTurns{id: "msg-9"}))

	id, err := r.Resolve("chat-1", types.KindHTML)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.MessageID != "msg-9" {
		t.Errorf("message id = %q, want reconstructed msg-9", id.MessageID)
	}
	if !id.Degraded {
		t.Error("reconstructed context must be flagged degraded")
	}
	// Reconstruction is sticky for subsequent fragments of the turn.
	if r.CurrentMessageID("chat-1") != "msg-9" {
		t.Error("reconstructed id should become the current context")
	}
}

func TestResolve_DegradedWithoutAnyContext(t *testing.T) {
	r := NewResolver(&seqMinter{})

	id, err := r.Resolve("chat-1", types.KindOutput)
	if err != nil {
		t.Fatalf("degraded resolve must not error: %v", err)
	}
	if id.MessageID != "" || id.ParentID != "" {
		t.Errorf("identity %+v, want empty linkage in degraded mode", id)
	}
	if !id.Degraded {
		t.Error("must be flagged degraded")
	}
	if id.ArtifactID == "" {
		t.Error("artifact id is still minted in degraded mode")
	}
}

func TestResolve_MinterFailurePropagates(t *testing.T) {
	r := NewResolver(&seqMinter{fail: true}, WithContext("chat-1", "msg-1", ""))
	if _, err := r.Resolve("chat-1", types.KindCode); err == nil {
		t.Fatal("minter failure must propagate")
	}
}

func TestULIDMinter(t *testing.T) {
	m := NewULIDMinter()
	seen := make(map[string]bool)
	var prev string
	for i := 0; i < 100; i++ {
		id, err := m.MintID(types.KindCode, "msg-1")
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if !strings.HasPrefix(id, "code_") {
			t.Fatalf("id %q missing kind prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
		if prev != "" && id <= prev {
			t.Fatalf("ids not monotonic: %q after %q", id, prev)
		}
		prev = id
	}
}
