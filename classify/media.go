package classify

import (
	"regexp"
	"strings"

	"github.com/justapithecus/loom/lenient"
	"github.com/justapithecus/loom/types"
)

// mediaHints gate the (comparatively expensive) parse attempt: string
// content is only sniffed when it textually mentions a media list key.
var mediaHints = []string{`"videos"`, `'videos'`, `"images"`, `'images'`}

// videoURLRe matches known video hosting URLs and video file extensions.
var videoURLRe = regexp.MustCompile(`(?i)(youtube\.com|youtu\.be|vimeo\.com|dailymotion\.com|\.mp4\b|\.webm\b|\.mov\b|\.m3u8\b)`)

// imageURLRe matches known image file extensions.
var imageURLRe = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp|svg|bmp)\b`)

// Field names that identify an element as video-like or image-like.
var (
	videoSourceFields = []string{"embed_src", "embed_url", "video_src", "video_url"}
	imageSourceFields = []string{"img_src", "image_src", "image_url", "thumbnail", "thumb_src"}
)

// SniffMedia attempts to interpret content as a media payload.
// Only attempted for structured content or strings carrying a media
// hint. Returns the parsed items and true on success; (nil, false)
// means the content is not media and classification falls through.
func SniffMedia(content any) ([]types.MediaItem, bool) {
	list, ok := mediaList(content)
	if !ok || len(list) == 0 {
		return nil, false
	}

	var videos, images int
	items := make([]types.MediaItem, 0, len(list))
	for _, el := range list {
		entry, ok := el.(map[string]any)
		if !ok {
			continue
		}
		switch {
		case isVideoLike(entry):
			videos++
			items = append(items, mediaItem(entry, types.MediaVideo))
		case isImageLike(entry):
			images++
			items = append(items, mediaItem(entry, types.MediaImage))
		}
	}

	if videos == 0 && images == 0 {
		return nil, false
	}

	// Majority class wins, ties broken toward video.
	majority := types.MediaVideo
	if images > videos {
		majority = types.MediaImage
	}
	for i := range items {
		items[i].Kind = majority
	}
	return items, true
}

// sniffOrFallback sniffs content for media and, when the sniff misses,
// additionally reports whether the content had advertised a media
// payload. A hinted payload that fails to parse is a fallback the
// pipeline counts.
func sniffOrFallback(content any) (items []types.MediaItem, ok bool, fallback bool) {
	items, ok = SniffMedia(content)
	if ok {
		return items, true, false
	}
	return nil, false, mediaHinted(content)
}

// mediaHinted reports whether string content textually advertises a
// media list.
func mediaHinted(content any) bool {
	s, ok := content.(string)
	return ok && hasMediaHint(s)
}

// mediaList extracts the candidate element list from the content.
// Accepts a bare list, or an object with a videos/images key holding a
// list. String content is parsed leniently, gated on mediaHints.
func mediaList(content any) ([]any, bool) {
	switch v := content.(type) {
	case string:
		if !hasMediaHint(v) {
			return nil, false
		}
		parsed, err := lenient.Parse(v)
		if err != nil {
			return nil, false
		}
		return mediaList(parsed)
	case []any:
		return v, true
	case map[string]any:
		for _, key := range []string{"videos", "images"} {
			if list, ok := v[key].([]any); ok {
				return list, true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

func hasMediaHint(s string) bool {
	for _, hint := range mediaHints {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}

func isVideoLike(entry map[string]any) bool {
	for _, field := range videoSourceFields {
		if s, ok := entry[field].(string); ok && s != "" {
			return true
		}
	}
	if url, ok := entry["url"].(string); ok {
		return videoURLRe.MatchString(url)
	}
	return false
}

func isImageLike(entry map[string]any) bool {
	for _, field := range imageSourceFields {
		if s, ok := entry[field].(string); ok && s != "" {
			return true
		}
	}
	if url, ok := entry["url"].(string); ok {
		return imageURLRe.MatchString(url)
	}
	return false
}

// mediaItem builds a MediaItem from a parsed element.
func mediaItem(entry map[string]any, kind types.MediaKind) types.MediaItem {
	item := types.MediaItem{Kind: kind}
	for _, field := range append(videoSourceFields, "url") {
		if s, ok := entry[field].(string); ok && s != "" {
			item.Source = s
			break
		}
	}
	if item.Source == "" {
		for _, field := range imageSourceFields {
			if s, ok := entry[field].(string); ok && s != "" {
				item.Source = s
				break
			}
		}
	}
	for _, field := range []string{"thumbnail", "thumb_src"} {
		if s, ok := entry[field].(string); ok && s != "" {
			item.Thumbnail = s
			break
		}
	}
	if s, ok := entry["title"].(string); ok {
		item.Title = s
	}
	return item
}
