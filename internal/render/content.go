package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alpinn/mirrorbot/internal/payload"
)

const (
	// maxMessageLength is the soft cap for message content, below Discord's
	// hard 2000-character limit to leave room for truncation markers.
	maxMessageLength = 1900

	maxListItems    = 5
	maxSectionItems = 8
	maxSummaryLines = 4
)

// titleKeys are object keys tried in order when picking an item title.
var titleKeys = []string{"title", "name", "nom", "label", "event", "headline"}

// summaryPreferredKeys are shown first in item summaries, in this order.
var summaryPreferredKeys = []string{
	"date", "created_at", "published_at", "updated_at", "start_at", "end_at",
	"status", "author", "location", "description", "excerpt", "subtitle",
}

// summaryBlockedKeys never appear in item summaries: identifiers and long
// body fields that get their own rendering path.
var summaryBlockedKeys = map[string]struct{}{
	"id": {}, "content": {}, "summary": {}, "category": {}, "categories": {},
	"body": {}, "text": {}, "html": {}, "markdown": {},
}

// ItemTitle picks a display title for a list item, falling back to its
// position in the list.
func ItemTitle(item map[string]any, index int) string {
	for _, key := range titleKeys {
		if value, ok := item[key].(string); ok && strings.TrimSpace(value) != "" {
			return FormatRichText(value, 80)
		}
	}
	return fmt.Sprintf("Element %d", index)
}

// ItemSummaryLines builds up to maxFields "`key`: value" lines for a list
// item, preferring well-known metadata keys and skipping identifiers.
func ItemSummaryLines(item map[string]any, maxFields int) []string {
	lines := make([]string, 0, maxFields)

	preferred := make(map[string]struct{}, len(summaryPreferredKeys))
	for _, key := range summaryPreferredKeys {
		preferred[key] = struct{}{}
		if len(lines) >= maxFields {
			continue
		}
		if line, ok := summaryLine(key, item[key]); ok {
			lines = append(lines, line)
		}
	}

	for _, key := range payload.SortedKeys(item) {
		if len(lines) >= maxFields {
			break
		}
		if _, isPreferred := preferred[key]; isPreferred {
			continue
		}
		lower := strings.ToLower(key)
		if _, blocked := summaryBlockedKeys[lower]; blocked || strings.HasSuffix(lower, "_id") {
			continue
		}
		if line, ok := summaryLine(key, item[key]); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func summaryLine(key string, value any) (string, bool) {
	text, ok := scalarText(value, 160)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("`%s`: %s", key, text), true
}

// scalarText renders a scalar payload value as display text. Non-scalar or
// blank values yield ok=false.
func scalarText(value any, maxLen int) (string, bool) {
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return "", false
		}
		return FormatRichText(typed, maxLen), true
	case bool:
		return fmt.Sprintf("%t", typed), true
	case float64:
		return Truncate(trimFloat(typed), maxLen), true
	case int, int64:
		return Truncate(fmt.Sprintf("%d", typed), maxLen), true
	}
	return "", false
}

// trimFloat renders JSON numbers without a spurious fractional part.
func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// newsURLKeys are object keys tried in order when extracting an article link.
var newsURLKeys = []string{"url", "scroll_url", "external_url", "news_url", "link", "permalink"}

var newsLinkSubKeys = []string{"self", "public", "web", "details"}

// NewsURL extracts the first absolute link from a news item, checking the
// item's own keys before its nested "links" object.
func NewsURL(item map[string]any) string {
	for _, key := range newsURLKeys {
		if raw, ok := item[key].(string); ok {
			if url := strings.TrimSpace(raw); isHTTPURL(url) {
				return url
			}
		}
	}
	if links, ok := item["links"].(map[string]any); ok {
		for _, key := range newsLinkSubKeys {
			if raw, ok := links[key].(string); ok {
				if url := strings.TrimSpace(raw); isHTTPURL(url) {
					return url
				}
			}
		}
	}
	return ""
}

func isHTTPURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

// NewsTitle picks a title for a news item.
func NewsTitle(item map[string]any, index int) string {
	for _, key := range []string{"title", "name", "headline"} {
		if value, ok := item[key].(string); ok && strings.TrimSpace(value) != "" {
			return FormatRichText(value, 120)
		}
	}
	return fmt.Sprintf("News %d", index)
}

// newsBodyKeys are object keys tried in order when extracting article text.
var newsBodyKeys = []string{"content", "article", "body", "text", "description", "summary", "excerpt"}

// NewsBody extracts the article text of a news item.
func NewsBody(item map[string]any) string {
	for _, key := range newsBodyKeys {
		if value, ok := item[key].(string); ok && strings.TrimSpace(value) != "" {
			return FormatRichText(value, 1400)
		}
	}
	return "No text available."
}

// NewsMessage renders the full message content for one news item: bold
// title, body, and a link line when the item carries one.
func NewsMessage(item map[string]any, index int) string {
	lines := []string{
		fmt.Sprintf("**%s**", NewsTitle(item, index)),
		NewsBody(item),
	}
	if url := NewsURL(item); url != "" {
		lines = append(lines, fmt.Sprintf("[Read more](%s)", url))
	}

	var kept []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return capMessage(strings.Join(kept, "\n\n"))
}

// sectionTitles maps known association section names to display titles.
var sectionTitles = map[string]string{
	"members":         "Members",
	"membres":         "Members",
	"values":          "Values",
	"valeurs":         "Values",
	"volunteers":      "Volunteers",
	"benevoles":       "Volunteers",
	"partners":        "Partners",
	"partenaires":     "Partners",
	"reports":         "Reports",
	"rapports":        "Reports",
	"association_url": "Association link",
}

// SectionTitle maps a section name to its display title, falling back to a
// capitalized form of the raw name.
func SectionTitle(name string) string {
	if title, ok := sectionTitles[strings.ToLower(name)]; ok {
		return title
	}
	cleaned := strings.ReplaceAll(name, "_", " ")
	if cleaned == "" {
		return name
	}
	return strings.ToUpper(cleaned[:1]) + cleaned[1:]
}

// SectionMessage renders one association section as a standalone message.
// The shape of the section value (string, list, object) decides the layout.
func SectionMessage(name string, value any) string {
	header := fmt.Sprintf("**ASSOCIATION - %s**", SectionTitle(name))

	switch typed := value.(type) {
	case string:
		if isHTTPURL(typed) {
			return capMessage(header + "\n\n" + fmt.Sprintf("[Open](%s)", typed))
		}
		return capMessage(header + "\n\n" + FormatRichText(typed, 1500))

	case []any:
		lines := []string{header}
		if len(typed) == 0 {
			lines = append(lines, "No data.")
			return capMessage(strings.Join(lines, "\n"))
		}
		limit := len(typed)
		if limit > maxSectionItems {
			limit = maxSectionItems
		}
		for idx, raw := range typed[:limit] {
			if item, ok := raw.(map[string]any); ok {
				lines = append(lines, fmt.Sprintf("**%d. %s**", idx+1, ItemTitle(item, idx+1)))
				for _, summary := range ItemSummaryLines(item, maxSummaryLines) {
					lines = append(lines, "- "+summary)
				}
			} else {
				lines = append(lines, "- "+Truncate(fmt.Sprintf("%v", raw), 200))
			}
		}
		if len(typed) > limit {
			lines = append(lines, fmt.Sprintf("... and %d more.", len(typed)-limit))
		}
		return capMessage(strings.Join(lines, "\n"))

	case map[string]any:
		lines := []string{header}
		count := 0
		for _, key := range payload.SortedKeys(typed) {
			if payload.IsMetaKey(key) {
				continue
			}
			if text, ok := scalarText(typed[key], 220); ok {
				lines = append(lines, fmt.Sprintf("- `%s`: %s", key, text))
				count++
			}
			if count >= 10 {
				lines = append(lines, "- ...")
				break
			}
		}
		if count == 0 {
			lines = append(lines, jsonBlock(typed, 1400))
		}
		return capMessage(strings.Join(lines, "\n"))
	}

	return capMessage(header + "\n\n" + Truncate(fmt.Sprintf("%v", value), 1500))
}

// EndpointMessage renders a whole payload as one message: either a compact
// listing of its items or a field dump of its primary object.
func EndpointMessage(endpoint string, v payload.Value) string {
	header := fmt.Sprintf("**%s**", strings.ToUpper(endpoint))
	if !payload.HasDisplayableData(v) {
		return header + "\n" + NoDataMessage(endpoint)
	}

	primary := payload.PrimaryBlock(v)
	items := payload.ExtractItems(primary)
	lines := []string{header}

	switch {
	case items != nil:
		lines = append(lines, fmt.Sprintf("Total: **%d**", len(items)))
		lines = append(lines, paginationLines(v)...)
		if len(items) == 0 {
			lines = append(lines, NoDataMessage(endpoint))
			return strings.Join(lines, "\n")
		}

		limit := len(items)
		if limit > maxListItems {
			limit = maxListItems
		}
		for idx, raw := range items[:limit] {
			if item, ok := raw.(map[string]any); ok {
				lines = append(lines, fmt.Sprintf("\n**%d. %s**", idx+1, ItemTitle(item, idx+1)))
				for _, summary := range ItemSummaryLines(item, maxSummaryLines) {
					lines = append(lines, "- "+summary)
				}
				if endpoint == "news" {
					if url := NewsURL(item); url != "" {
						lines = append(lines, fmt.Sprintf("- [Read more](%s)", url))
					}
				}
			} else {
				lines = append(lines, fmt.Sprintf("\n**%d.** %s", idx+1, Truncate(fmt.Sprintf("%v", raw), 220)))
			}
		}
		if len(items) > limit {
			lines = append(lines, fmt.Sprintf("\n... and **%d** more element(s).", len(items)-limit))
		}

	default:
		if obj, ok := primary.(map[string]any); ok {
			count := 0
			for _, key := range payload.SortedKeys(obj) {
				if payload.IsMetaKey(key) {
					continue
				}
				if count >= 8 {
					lines = append(lines, "- ...")
					break
				}
				if text, ok := scalarText(obj[key], 200); ok {
					lines = append(lines, fmt.Sprintf("- `%s`: %s", key, text))
					count++
				}
			}
			if count == 0 {
				lines = append(lines, jsonBlock(obj, 1200))
			}
		} else {
			lines = append(lines, "- "+Truncate(fmt.Sprintf("%v", primary), 1200))
		}
	}

	return capMessage(strings.Join(lines, "\n"))
}

// NoDataMessage is the placeholder shown when an endpoint returns nothing.
func NoDataMessage(endpoint string) string {
	return fmt.Sprintf("No data currently available for endpoint `%s`.", endpoint)
}

func paginationLines(v payload.Value) []string {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	var lines []string
	if pagination, ok := obj["pagination"].(map[string]any); ok {
		page, hasPage := pagination["page"]
		totalPages, hasTotalPages := pagination["total_pages"]
		if hasPage && hasTotalPages {
			lines = append(lines, fmt.Sprintf("Page **%v/%v**", page, totalPages))
		}
		if total, ok := pagination["total"]; ok {
			lines = append(lines, fmt.Sprintf("API total: **%v**", total))
		}
	}
	if meta, ok := obj["meta"].(map[string]any); ok && len(meta) > 0 {
		lines = append(lines, "Meta: "+jsonInline(meta, 200))
	}
	return lines
}

// jsonInline compacts a payload fragment to one JSON line. encoding/json
// sorts object keys, which keeps this deterministic.
func jsonInline(v any, maxLen int) string {
	compact, err := json.Marshal(v)
	if err != nil {
		return Truncate(fmt.Sprintf("%v", v), maxLen)
	}
	return Truncate(string(compact), maxLen)
}

func jsonBlock(v any, maxLen int) string {
	return "```json\n" + jsonInline(v, maxLen) + "\n```"
}

func capMessage(content string) string {
	if len(content) <= maxMessageLength {
		return content
	}
	return Truncate(content, maxMessageLength-20) + "\n..."
}
