package payload

import (
	"sort"
	"strings"
)

// Value is a decoded JSON payload as returned by the endpoint API.
type Value = any

// maxScanDepth bounds recursive traversal of nested payload structures.
const maxScanDepth = 3

// metaKeys are API envelope fields that carry no displayable content.
var metaKeys = map[string]struct{}{
	"success":     {},
	"version":     {},
	"resource":    {},
	"timestamp":   {},
	"timezone":    {},
	"request_id":  {},
	"status_code": {},
}

// IsMetaKey reports whether a payload object key belongs to the API envelope.
func IsMetaKey(key string) bool {
	_, ok := metaKeys[key]
	return ok
}

// SortedKeys returns the keys of a payload object in lexical order.
// All map traversal that feeds rendering or signatures goes through this
// so identical payloads always produce identical output.
func SortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// primaryBlockKeys are wrapper keys commonly used by the API to hold the
// actual resource, tried in order.
var primaryBlockKeys = []string{"association", "data", "result", "content", "details", "payload"}

// PrimaryBlock unwraps the envelope around the resource of interest. If no
// known wrapper key holds a container, the first non-meta container value
// (in sorted key order) wins; otherwise the payload is returned as-is.
func PrimaryBlock(v Value) Value {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for _, key := range primaryBlockKeys {
		if inner, ok := obj[key]; ok && isContainer(inner) {
			return inner
		}
	}
	for _, key := range SortedKeys(obj) {
		if IsMetaKey(key) {
			continue
		}
		if inner := obj[key]; isContainer(inner) {
			return inner
		}
	}
	return v
}

// itemListKeys are wrapper keys commonly used to hold an enumerable list of
// sub-entities, tried in order.
var itemListKeys = []string{"data", "items", "results", "rows", "news", "events", "posts", "articles"}

// ExtractItems locates the first enumerable list of sub-entities in the
// payload, descending through known wrapper keys. Returns nil when the
// payload holds no list.
func ExtractItems(v Value) []any {
	return extractItems(v, 0)
}

func extractItems(v Value, depth int) []any {
	if depth > maxScanDepth {
		return nil
	}
	switch typed := v.(type) {
	case []any:
		return typed
	case map[string]any:
		for _, key := range itemListKeys {
			switch inner := typed[key].(type) {
			case []any:
				return inner
			case map[string]any:
				if nested := extractItems(inner, depth+1); nested != nil {
					return nested
				}
			}
		}
		for _, key := range SortedKeys(typed) {
			if inner, ok := typed[key].(map[string]any); ok {
				if nested := extractItems(inner, depth+1); nested != nil {
					return nested
				}
			}
		}
	}
	return nil
}

// HasDisplayableData reports whether the payload carries anything worth
// showing. Common wrappers like {"data": []} count as empty.
func HasDisplayableData(v Value) bool {
	switch typed := v.(type) {
	case nil:
		return false
	case []any:
		return len(typed) > 0
	case string:
		return strings.TrimSpace(typed) != ""
	case map[string]any:
		if len(typed) == 0 {
			return false
		}
		for _, key := range []string{"data", "items", "results"} {
			inner, ok := typed[key]
			if !ok {
				continue
			}
			switch innerTyped := inner.(type) {
			case []any:
				return len(innerTyped) > 0
			case map[string]any:
				return len(innerTyped) > 0
			case string:
				return strings.TrimSpace(innerTyped) != ""
			default:
				return inner != nil
			}
		}
		return true
	default:
		return true
	}
}

// imageURLKeys are object keys likely to hold an image URL, tried before
// scanning remaining values.
var imageURLKeys = []string{
	"image", "image_url", "thumbnail", "thumbnail_url",
	"photo", "picture", "banner", "cover", "avatar", "url",
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}

// LooksLikeImageURL reports whether a string value is plausibly an image URL.
func LooksLikeImageURL(value string) bool {
	url := strings.ToLower(strings.TrimSpace(value))
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return false
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(url, ext) {
			return true
		}
	}
	return strings.Contains(url, "image")
}

// FindImageURL scans the payload for the first image-looking URL, preferring
// well-known keys over a generic sweep. Returns "" when none is found.
func FindImageURL(v Value) string {
	return findImageURL(v, 0)
}

func findImageURL(v Value, depth int) string {
	if depth > maxScanDepth {
		return ""
	}
	switch typed := v.(type) {
	case string:
		if LooksLikeImageURL(typed) {
			return strings.TrimSpace(typed)
		}
	case map[string]any:
		for _, key := range imageURLKeys {
			if inner, ok := typed[key]; ok {
				if found := findImageURL(inner, depth+1); found != "" {
					return found
				}
			}
		}
		for _, key := range SortedKeys(typed) {
			if found := findImageURL(typed[key], depth+1); found != "" {
				return found
			}
		}
	case []any:
		limit := len(typed)
		if limit > 10 {
			limit = 10
		}
		for _, inner := range typed[:limit] {
			if found := findImageURL(inner, depth+1); found != "" {
				return found
			}
		}
	}
	return ""
}

func isContainer(v Value) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}
