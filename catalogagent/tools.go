package catalogagent

import "github.com/abarwater/aqua-router/domain/llm"

// toolDefs is the fixed tool surface from spec §4.7.
var toolDefs = []llm.Tool{
	{
		Name:        "get_all_cities",
		Description: "List every city served, with Arabic and English names.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "search_cities",
		Description: "Search for a city by a name fragment in Arabic or English. Returns exact matches first, then partial matches.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "City name or fragment."},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        "get_city_id_by_name",
		Description: "Resolve a city name (Arabic or English) to its internal id, or null if not found.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
			"required": []string{"name"},
		},
	},
	{
		Name:        "get_brands_by_city",
		Description: "List every brand available in a city.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city_id": map[string]any{"type": "integer"},
			},
			"required": []string{"city_id"},
		},
	},
	{
		Name:        "search_brands_in_city",
		Description: "Search for a brand by name within a specific city. Returns exact matches in that city first, then partial matches.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"brand_name": map[string]any{"type": "string"},
				"city_name":  map[string]any{"type": "string"},
			},
			"required": []string{"brand_name", "city_name"},
		},
	},
	{
		Name:        "get_products_by_brand_and_city_name",
		Description: "List the products a brand sells in a city, by brand and city name. Uses a cascading search (exact then partial match on both city and brand) and returns the first non-empty result.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"brand_name": map[string]any{"type": "string"},
				"city_name":  map[string]any{"type": "string"},
			},
			"required": []string{"brand_name", "city_name"},
		},
	},
	{
		Name:        "get_cheapest_products_by_city_name",
		Description: "Find the cheapest product for each packing size (bottle/carton/gallon size) available in a city, across all brands serving it.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city_name": map[string]any{"type": "string"},
			},
			"required": []string{"city_name"},
		},
	},
	{
		Name:        "check_city_availability",
		Description: "Check whether a city is served, or whether a specific brand or product is available in that city.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city_name": map[string]any{"type": "string"},
				"kind":      map[string]any{"type": "string", "enum": []string{"city", "brand", "product"}},
				"name":      map[string]any{"type": "string", "description": "Brand or product name; omit when kind is city."},
			},
			"required": []string{"city_name", "kind"},
		},
	},
}
