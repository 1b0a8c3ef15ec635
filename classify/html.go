package classify

import (
	"regexp"
	"strings"
)

// The backend sometimes renders structured tool results as HTML but
// ships them under the console kind. The detector favors precision over
// recall: a false negative degrades to plain-text rendering, a false
// positive would hand arbitrary console text to the HTML surface.

// Known container class names emitted by the backend's tool renderers.
const (
	containerClassToolCard   = "tool-card"
	containerClassResultCard = "result-card"
)

// markerTag is the wrapping element all known HTML tool output starts with.
const markerTag = "<div"

// searchBannerRe matches the semantic-search results banner: an
// emoji-prefixed heading, with or without markdown heading syntax.
var searchBannerRe = regexp.MustCompile(`(?m)^\s*(?:#{1,3}\s*)?[🔍🔎]\s*(?:Semantic\s+)?[Ss]earch\s+[Rr]esults`)

// fencedBlockRe extracts fenced code block bodies so HTML shipped
// inside a markdown fence is still detected.
var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n(.*?)```")

// LooksLikeHTML reports whether console-kind content is disguised HTML.
// Applies only to content whose declared format is not already html.
func LooksLikeHTML(content string) bool {
	if content == "" {
		return false
	}
	if matchesSignature(content) {
		return true
	}
	for _, m := range fencedBlockRe.FindAllStringSubmatch(content, -1) {
		if matchesSignature(m[1]) {
			return true
		}
	}
	return false
}

func matchesSignature(s string) bool {
	if strings.Contains(s, markerTag) &&
		(strings.Contains(s, containerClassToolCard) || strings.Contains(s, containerClassResultCard)) {
		return true
	}
	return searchBannerRe.MatchString(s)
}
