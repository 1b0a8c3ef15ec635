// Package classify maps inbound fragments to artifact kinds.
//
// Classification is a pure function of (role, kind, format, content);
// it holds no state and never errors. Ambiguous payloads degrade to
// the output kind so backend activity stays visible even when the
// heuristics misfire.
package classify

import (
	"strings"

	"github.com/justapithecus/loom/types"
)

// Decision is the classifier verdict for one fragment.
type Decision struct {
	// Kind is the artifact kind the fragment belongs to.
	Kind types.ArtifactKind
	// Discard is true when the fragment must not surface as an artifact
	// (inter-agent traffic addressed to a foreign recipient).
	Discard bool
	// Media holds the parsed payload when Kind is KindMedia.
	Media []types.MediaItem
	// MediaFallback is true when the content advertised a media payload
	// but failed to parse as one and degraded to the output kind.
	MediaFallback bool
}

// Classify decides which artifact kind a fragment represents.
// Decision order, first match wins:
//  1. assistant code -> code
//  2. computer fragment with a foreign recipient -> discard
//  3. computer console -> output, promoted to html when the declared
//     format already says so or the content looks like disguised HTML
//  4. computer code with html format -> html
//  5. array-shaped videos/images payload -> media
//  6. everything else -> output
func Classify(frag *types.InboundFragment) Decision {
	if frag.Role == types.RoleAssistant && frag.Kind == types.FragmentCode {
		return Decision{Kind: types.KindCode}
	}

	if frag.Role == types.RoleComputer && frag.ForeignRecipient() {
		return Decision{Discard: true}
	}

	if frag.Role == types.RoleComputer && frag.Kind == types.FragmentConsole {
		// A declared html format needs no disguise detection; the
		// heuristic only covers HTML shipped as plain console text.
		if strings.EqualFold(frag.Format, "html") || LooksLikeHTML(frag.Text()) {
			return Decision{Kind: types.KindHTML}
		}
		items, ok, fallback := sniffOrFallback(frag.Content)
		if ok {
			return Decision{Kind: types.KindMedia, Media: items}
		}
		return Decision{Kind: types.KindOutput, MediaFallback: fallback}
	}

	if frag.Role == types.RoleComputer && frag.Kind == types.FragmentCode &&
		strings.EqualFold(frag.Format, "html") {
		return Decision{Kind: types.KindHTML}
	}

	items, ok, fallback := sniffOrFallback(frag.Content)
	if ok {
		return Decision{Kind: types.KindMedia, Media: items}
	}

	return Decision{Kind: types.KindOutput, MediaFallback: fallback}
}
