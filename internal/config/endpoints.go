package config

import "fmt"

// ItemMode selects how an endpoint's payload is mirrored: as one message
// for the whole payload, or one message per sub-entity.
const (
	ItemModeSingle = "single"
	ItemModeMulti  = "multi"
)

// EndpointSpec describes one pollable API endpoint.
type EndpointSpec struct {
	Name     string
	Path     string
	ItemMode string
}

// endpointCatalog lists the endpoints the upstream API exposes. The news
// feed and the association profile fan out into per-item messages; the rest
// are mirrored as a single message each.
var endpointCatalog = []EndpointSpec{
	{Name: "association", Path: "/api/v1/association.php", ItemMode: ItemModeMulti},
	{Name: "news", Path: "/api/v1/news.php", ItemMode: ItemModeMulti},
	{Name: "statuts", Path: "/api/v1/statuts.php", ItemMode: ItemModeSingle},
	{Name: "staff", Path: "/api/v1/staff.php", ItemMode: ItemModeSingle},
	{Name: "activities", Path: "/api/v1/activities.php", ItemMode: ItemModeSingle},
	{Name: "events", Path: "/api/v1/events.php", ItemMode: ItemModeSingle},
}

// Endpoints returns the full endpoint catalog.
func Endpoints() []EndpointSpec {
	catalog := make([]EndpointSpec, len(endpointCatalog))
	copy(catalog, endpointCatalog)
	return catalog
}

// EndpointByName looks up one endpoint in the catalog.
func EndpointByName(name string) (EndpointSpec, error) {
	for _, spec := range endpointCatalog {
		if spec.Name == name {
			return spec, nil
		}
	}
	return EndpointSpec{}, fmt.Errorf("unknown endpoint %q", name)
}

// EndpointNames returns the catalog's endpoint names in catalog order.
func EndpointNames() []string {
	names := make([]string, 0, len(endpointCatalog))
	for _, spec := range endpointCatalog {
		names = append(names, spec.Name)
	}
	return names
}
