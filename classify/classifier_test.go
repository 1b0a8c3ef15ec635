package classify

import (
	"testing"

	"github.com/justapithecus/loom/types"
)

func TestClassify_DecisionOrder(t *testing.T) {
	tests := []struct {
		name string
		frag types.InboundFragment
		want types.ArtifactKind
	}{
		{
			name: "assistant code",
			frag: types.InboundFragment{Role: types.RoleAssistant, Kind: types.FragmentCode, Format: "python"},
			want: types.KindCode,
		},
		{
			name: "assistant code with html format stays code",
			frag: types.InboundFragment{Role: types.RoleAssistant, Kind: types.FragmentCode, Format: "html"},
			want: types.KindCode,
		},
		{
			name: "computer console plain text",
			frag: types.InboundFragment{Role: types.RoleComputer, Kind: types.FragmentConsole, Content: "ran 3 tests"},
			want: types.KindOutput,
		},
		{
			name: "computer console disguised html",
			frag: types.InboundFragment{Role: types.RoleComputer, Kind: types.FragmentConsole, Content: `<div class="tool-card">done</div>`},
			want: types.KindHTML,
		},
		{
			name: "computer console declared html format",
			frag: types.InboundFragment{Role: types.RoleComputer, Kind: types.FragmentConsole, Format: "html", Content: "<p>report</p>"},
			want: types.KindHTML,
		},
		{
			name: "computer code html format",
			frag: types.InboundFragment{Role: types.RoleComputer, Kind: types.FragmentCode, Format: "html", Content: "<p>hi</p>"},
			want: types.KindHTML,
		},
		{
			name: "system fragment defaults to output",
			frag: types.InboundFragment{Role: types.RoleSystem, Kind: types.FragmentMessage, Content: "notice"},
			want: types.KindOutput,
		},
		{
			name: "unrecognized combination defaults to output",
			frag: types.InboundFragment{Role: types.RoleAssistant, Kind: types.FragmentConsole, Content: "???"},
			want: types.KindOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(&tt.frag)
			if d.Discard {
				t.Fatal("unexpected discard")
			}
			if d.Kind != tt.want {
				t.Errorf("got kind %q, want %q", d.Kind, tt.want)
			}
		})
	}
}

func TestClassify_ForeignRecipientDiscarded(t *testing.T) {
	frag := &types.InboundFragment{
		Role:      types.RoleComputer,
		Kind:      types.FragmentConsole,
		Recipient: "planner",
		Content:   "internal hand-off",
	}
	if d := Classify(frag); !d.Discard {
		t.Error("expected discard for foreign recipient")
	}

	// Recipient "user" and absent recipient both surface.
	frag.Recipient = "user"
	if d := Classify(frag); d.Discard {
		t.Error("recipient user must not be discarded")
	}
	frag.Recipient = ""
	if d := Classify(frag); d.Discard {
		t.Error("absent recipient must not be discarded")
	}
}

func TestClassify_MediaFromConsole(t *testing.T) {
	frag := &types.InboundFragment{
		Role:    types.RoleComputer,
		Kind:    types.FragmentConsole,
		Content: `{'images': [{'img_src': 'a.png'}, {'img_src': 'b.png'}]}`,
	}
	d := Classify(frag)
	if d.Kind != types.KindMedia {
		t.Fatalf("got kind %q, want media", d.Kind)
	}
	if len(d.Media) != 2 {
		t.Fatalf("expected 2 media items, got %d", len(d.Media))
	}
	if d.Media[0].Kind != types.MediaImage {
		t.Errorf("expected image majority, got %q", d.Media[0].Kind)
	}
}

func TestClassify_HintedPayloadThatFailsToParseFallsBack(t *testing.T) {
	frag := &types.InboundFragment{
		Role:    types.RoleComputer,
		Kind:    types.FragmentConsole,
		Content: `{"videos": [{"embed_src": truncated mid-st`,
	}
	d := Classify(frag)
	if d.Kind != types.KindOutput {
		t.Fatalf("got kind %q, want output", d.Kind)
	}
	if !d.MediaFallback {
		t.Error("hinted payload that failed to parse must flag the fallback")
	}

	// Plain console text never counts as a fallback.
	plain := Classify(&types.InboundFragment{
		Role: types.RoleComputer, Kind: types.FragmentConsole, Content: "ran 3 tests",
	})
	if plain.MediaFallback {
		t.Error("unhinted content must not flag a fallback")
	}
}

func TestClassify_StructuredContentSniffedWithoutHint(t *testing.T) {
	frag := &types.InboundFragment{
		Role: types.RoleComputer,
		Kind: types.FragmentMedia,
		Content: []any{
			map[string]any{"embed_src": "https://player.example/v/1"},
		},
	}
	d := Classify(frag)
	if d.Kind != types.KindMedia {
		t.Fatalf("got kind %q, want media", d.Kind)
	}
	if d.Media[0].Kind != types.MediaVideo {
		t.Errorf("expected video, got %q", d.Media[0].Kind)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	frag := &types.InboundFragment{
		Role:    types.RoleComputer,
		Kind:    types.FragmentConsole,
		Content: "🔍 Search results for \"query\"",
	}
	first := Classify(frag)
	for i := 0; i < 5; i++ {
		if got := Classify(frag); got.Kind != first.Kind {
			t.Fatalf("classification not deterministic: %q then %q", first.Kind, got.Kind)
		}
	}
	if first.Kind != types.KindHTML {
		t.Errorf("search banner should classify as html, got %q", first.Kind)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"marker with tool-card class", `<div class="tool-card">x</div>`, true},
		{"marker with result-card class", `<div class="result-card">x</div>`, true},
		{"marker without known class", `<div class="foo">x</div>`, false},
		{"class name without marker tag", `tool-card`, false},
		{"search banner", "🔍 Search Results", true},
		{"search banner with heading", "## 🔎 Semantic search results", true},
		{"fenced block with signature", "output:\n```html\n<div class=\"tool-card\"></div>\n```", true},
		{"fenced block without signature", "```\nplain\n```", false},
		{"plain text", "all tests passed", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeHTML(tt.content); got != tt.want {
				t.Errorf("LooksLikeHTML(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}
