package differ

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/alpinn/mirrorbot/internal/payload"
	"github.com/alpinn/mirrorbot/internal/render"
	"github.com/rs/zerolog"
)

// Mode selects how an endpoint's payload is reduced to logical items.
type Mode string

const (
	// ModeSingle mirrors the whole payload as one message.
	ModeSingle Mode = "single"
	// ModeMulti mirrors each sub-entity (article, section) as its own message.
	ModeMulti Mode = "multi"
)

// Valid reports whether the mode is one of the known variants.
func (m Mode) Valid() bool {
	return m == ModeSingle || m == ModeMulti
}

// Item is one unit of comparison and display: a stable key, the rendered
// message content, an optional image URL, and the change-detection signature
// derived from both.
type Item struct {
	Key       string
	Content   string
	ImageURL  string
	Signature string
}

// MalformedPayloadError indicates a payload that does not match the shape
// expected for the endpoint's item mode.
type MalformedPayloadError struct {
	Endpoint string
	Reason   string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload for endpoint %q: %s", e.Endpoint, e.Reason)
}

// Differ reduces normalized payloads into ordered sets of logical items.
// For identical payloads it produces byte-identical signatures: all map
// traversal is key-sorted and no timestamps enter the rendered content.
type Differ struct {
	logger zerolog.Logger
}

// NewDiffer creates a Differ.
func NewDiffer(logger zerolog.Logger) *Differ {
	return &Differ{
		logger: logger.With().Str("component", "Differ").Logger(),
	}
}

// Reduce turns a payload into the ordered item set for one job.
func (d *Differ) Reduce(endpoint string, mode Mode, v payload.Value) ([]Item, error) {
	switch mode {
	case ModeSingle:
		return []Item{d.wholePayloadItem(endpoint, v)}, nil
	case ModeMulti:
		return d.multiItems(endpoint, v)
	default:
		return nil, &MalformedPayloadError{Endpoint: endpoint, Reason: fmt.Sprintf("unknown item mode %q", mode)}
	}
}

// wholePayloadItem renders the whole payload as a single item keyed by the
// endpoint name.
func (d *Differ) wholePayloadItem(endpoint string, v payload.Value) Item {
	content := render.EndpointMessage(endpoint, v)
	imageURL := payload.FindImageURL(v)
	return Item{
		Key:       endpoint,
		Content:   content,
		ImageURL:  imageURL,
		Signature: Signature(content, imageURL),
	}
}

// multiItems splits the payload into per-entity items. A payload holding a
// list yields one item per entity; an object payload yields one item per
// section. Anything else is malformed.
func (d *Differ) multiItems(endpoint string, v payload.Value) ([]Item, error) {
	switch primary := payload.PrimaryBlock(v).(type) {
	case []any:
		return d.entityItems(endpoint, primary), nil
	case map[string]any:
		if items := payload.ExtractItems(primary); items != nil {
			return d.entityItems(endpoint, items), nil
		}
		return d.sectionItems(primary), nil
	default:
		return nil, &MalformedPayloadError{Endpoint: endpoint, Reason: "expected a list of entities or a sectioned object"}
	}
}

// entityItems builds one item per list entity. Entities without a usable
// identifier are skipped rather than merged under a positional key: a
// positional key is not stable across polls and would corrupt reconciliation
// when the list is reordered.
func (d *Differ) entityItems(endpoint string, entities []any) []Item {
	items := make([]Item, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))

	for idx, raw := range entities {
		entity, ok := raw.(map[string]any)
		if !ok {
			d.logger.Debug().Str("endpoint", endpoint).Int("index", idx).Msg("Skipping non-object entity")
			continue
		}
		key := EntityKey(entity)
		if key == "" {
			d.logger.Warn().Str("endpoint", endpoint).Int("index", idx).Msg("Skipping entity without a stable identifier")
			continue
		}
		if _, dup := seen[key]; dup {
			d.logger.Warn().Str("endpoint", endpoint).Str("key", key).Msg("Skipping entity with duplicate identifier")
			continue
		}
		seen[key] = struct{}{}

		content := render.NewsMessage(entity, idx+1)
		imageURL := payload.FindImageURL(entity)
		items = append(items, Item{
			Key:       key,
			Content:   content,
			ImageURL:  imageURL,
			Signature: Signature(content, imageURL),
		})
	}
	return items
}

// sectionItems builds one item per non-meta section of an object payload,
// in sorted section order.
func (d *Differ) sectionItems(primary map[string]any) []Item {
	keys := payload.SortedKeys(primary)
	items := make([]Item, 0, len(keys))

	for _, name := range keys {
		if payload.IsMetaKey(name) {
			continue
		}
		value := primary[name]
		if value == nil {
			continue
		}
		content := render.SectionMessage(name, value)
		imageURL := payload.FindImageURL(value)
		items = append(items, Item{
			Key:       name,
			Content:   content,
			ImageURL:  imageURL,
			Signature: Signature(content, imageURL),
		})
	}
	return items
}

// EntityKey derives the stable identity of a list entity, preferring its
// link, then slug, then id, then a normalized title. Returns "" when the
// entity exposes none of these.
func EntityKey(entity map[string]any) string {
	if url := render.NewsURL(entity); url != "" {
		return "url:" + url
	}
	if slug, ok := entity["slug"].(string); ok && strings.TrimSpace(slug) != "" {
		return "slug:" + strings.TrimSpace(slug)
	}
	if id, ok := entity["id"]; ok && id != nil {
		if text := strings.TrimSpace(fmt.Sprintf("%v", id)); text != "" {
			return "id:" + text
		}
	}
	for _, key := range []string{"title", "name", "headline"} {
		if title, ok := entity[key].(string); ok && strings.TrimSpace(title) != "" {
			return "title:" + strings.ToLower(strings.TrimSpace(title))
		}
	}
	return ""
}

// Signature computes the change-detection signature for rendered content and
// its image URL. An image appearing, changing, or disappearing counts as a
// content change.
func Signature(content, imageURL string) string {
	sum := sha256.Sum256([]byte(content + "\n[image]" + imageURL))
	return fmt.Sprintf("%x", sum)
}
