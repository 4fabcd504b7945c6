// Package catalogagent implements C9: a tool-using LLM loop that answers
// catalog questions against the Catalog Store (C2), grounded on the
// teacher's integrations/gemini/gemini.go tool-call loop shape (issue one
// call, feed the JSON result back, repeat) and on
// original_source/database/district_utils.py for the district
// pre-resolution short-circuit and its exact "use the app" canned message.
package catalogagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/abarwater/aqua-router/domain/catalog"
	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/domain/llm"
	"github.com/abarwater/aqua-router/langutil"
)

// maxToolCalls is the hard cap from spec §4.7 / §8 property 8.
const maxToolCalls = 8

// notServedMessageAr is ported verbatim from
// original_source/database/district_utils.py::is_city_serviced.
const notServedMessageAr = "بتحصل الاصناف والاسعار في التطبيق وهذا هو الرابط https://onelink.to/abar_app https://abar.app/en/store/ وايضا عن طريق الموقع الالكتروني"

// notServedMessageEn is a direct translation of notServedMessageAr; the
// original system never replies in English here, but this product does.
const notServedMessageEn = "You can see all products and prices in our app: https://onelink.to/abar_app https://abar.app/en/store/ — or on our website."

const tooManyToolCallsAr = "عذراً، الرجاء إعادة المحاولة."
const tooManyToolCallsEn = "Sorry, please try again."

const systemPromptAr = `أنت موظف خدمة عملاء في شركة توصيل مياه في السعودية. رد بطريقة طبيعية تماماً مثل أي موظف حقيقي. لا تستخدم أبداً عبارات مثل "أنا ذكاء اصطناعي" أو ما شابه، ولا تعترف أبداً بأنك روبوت أو نموذج لغوي. اتبع دائماً هذا الترتيب في المحادثة: المدينة أولاً، ثم الماركة، ثم المنتجات. استخدم الأدوات المتاحة لك للإجابة على أسئلة العميل، ولا تخترع معلومات عن المدن أو الماركات أو الأسعار.`

const systemPromptEn = `You are a customer-service employee at a bottled-water delivery company in Saudi Arabia. Reply the way any real employee would. Never say you are an AI, a bot, or a language model. Always follow this order in conversation: city first, then brand, then products. Use the tools available to you to answer the customer's questions, and never invent cities, brands, or prices.`

// Agent is the catalog query tool-calling loop.
type Agent struct {
	Store catalog.Store
	Chat  llm.ChatProvider
}

// Run answers one inbound message. history is oldest-first and already
// capped by the caller (spec §4.8 step 5 passes the last 5 turns).
func (a *Agent) Run(ctx context.Context, text string, lang conversation.Language, history []conversation.HistoryTurn) (string, error) {
	if reply, short := a.districtPreResolution(ctx, text, lang); short {
		return reply, nil
	}

	systemPrompt := systemPromptEn
	if lang == conversation.LanguageArabic {
		systemPrompt = systemPromptAr
	}

	turns := make([]llm.ChatTurn, 0, len(history))
	for _, h := range history {
		turns = append(turns, llm.ChatTurn{Role: h.Role, Text: h.Content})
	}

	for i := 0; i < maxToolCalls; i++ {
		resp, err := a.Chat.Chat(ctx, llm.ChatRequest{
			SystemPrompt: systemPrompt,
			History:      turns,
			UserText:     text,
			Tools:        toolDefs,
			Temperature:  llm.MaxTemperatureFreeText,
			MaxTokens:    600,
		})
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return strings.TrimSpace(resp.Text), nil
		}

		// spec §4.7: parallel tool calls are disabled — act on one call.
		call := resp.ToolCalls[0]
		result, toolErr := a.dispatch(ctx, call.Name, call.Args)
		var resultData any
		if toolErr != nil {
			resultData = map[string]any{"error": toolErr.Error()}
		} else {
			resultData = result
		}

		turns = append(turns, llm.ChatTurn{
			Role:       "assistant",
			ToolCalls:  []llm.ToolCall{call},
			RawContent: resp.RawContent,
		})
		turns = append(turns, llm.ChatTurn{
			Role:          "user",
			ToolResponses: []llm.ToolResult{{ID: call.ID, Name: call.Name, Data: resultData}},
		})
		text = ""
	}

	if lang == conversation.LanguageArabic {
		return tooManyToolCallsAr, nil
	}
	return tooManyToolCallsEn, nil
}

// districtPreResolution implements spec §4.7's pre-resolution hook: if the
// message mentions a district, resolve it to a city and short-circuit
// before any LLM call when that city is not served.
func (a *Agent) districtPreResolution(ctx context.Context, text string, lang conversation.Language) (string, bool) {
	normalized := langutil.NormalizeArabic(text)
	words := strings.Fields(normalized)

	candidates := make([]string, 0, len(words)*2)
	for i, w := range words {
		candidates = append(candidates, w)
		if i+1 < len(words) {
			candidates = append(candidates, w+" "+words[i+1])
		}
	}

	for _, c := range candidates {
		district, ok, err := a.Store.FindDistrict(ctx, c)
		if err != nil || !ok {
			continue
		}
		cities, err := a.Store.SearchCities(ctx, district.CityName)
		if err != nil {
			continue
		}
		if len(cities) > 0 {
			return "", false // city is served, let the normal loop handle it
		}
		if lang == conversation.LanguageArabic {
			return notServedMessageAr, true
		}
		return notServedMessageEn, true
	}

	return "", false
}

func (a *Agent) dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "get_all_cities":
		return a.Store.GetAllCities(ctx)
	case "search_cities":
		return a.Store.SearchCities(ctx, argString(args, "query"))
	case "get_city_id_by_name":
		return a.getCityIDByName(ctx, argString(args, "name"))
	case "get_brands_by_city":
		cityID := argInt(args, "city_id")
		return a.Store.GetBrandsByCity(ctx, cityID)
	case "search_brands_in_city":
		return a.searchBrandsInCity(ctx, argString(args, "city_name"), argString(args, "brand_name"))
	case "get_products_by_brand_and_city_name":
		return a.cascadingProducts(ctx, argString(args, "brand_name"), argString(args, "city_name"))
	case "get_cheapest_products_by_city_name":
		return a.cheapestProducts(ctx, argString(args, "city_name"))
	case "check_city_availability":
		return a.checkAvailability(ctx, argString(args, "city_name"), argString(args, "kind"), argString(args, "name"))
	default:
		return nil, fmt.Errorf("catalogagent: unknown tool %q", name)
	}
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func argInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func (a *Agent) getCityIDByName(ctx context.Context, name string) (any, error) {
	cities, err := a.Store.SearchCities(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(cities) == 0 {
		return map[string]any{"id": nil}, nil
	}
	return map[string]any{"id": cities[0].ID}, nil
}

func (a *Agent) searchBrandsInCity(ctx context.Context, cityName, brandName string) (any, error) {
	city, ok, err := a.bestCity(ctx, cityName)
	if err != nil || !ok {
		return []catalog.Brand{}, err
	}
	return a.Store.SearchBrandsInCity(ctx, city.ID, brandName)
}

// bestCity returns the best SearchCities match (exact matches sort first).
func (a *Agent) bestCity(ctx context.Context, name string) (catalog.City, bool, error) {
	cities, err := a.Store.SearchCities(ctx, name)
	if err != nil || len(cities) == 0 {
		return catalog.City{}, false, err
	}
	return cities[0], true, nil
}

func isExactCity(c catalog.City, query string) bool {
	return equalsFold(c.NameAr, query) || equalsFold(c.NameEn, query)
}

func isExactBrand(b catalog.Brand, query string) bool {
	return equalsFold(b.TitleAr, query) || equalsFold(b.TitleEn, query)
}

func equalsFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// cascadingProducts implements spec §4.7's 4-priority cascade: exact
// city+exact brand, exact city+partial brand, partial city+exact brand,
// partial city+partial brand — stopping at the first non-empty result.
func (a *Agent) cascadingProducts(ctx context.Context, brandName, cityName string) ([]catalog.Product, error) {
	cities, err := a.Store.SearchCities(ctx, cityName)
	if err != nil || len(cities) == 0 {
		return nil, err
	}

	var exactCity *catalog.City
	var partialCities []catalog.City
	for i := range cities {
		if isExactCity(cities[i], cityName) && exactCity == nil {
			exactCity = &cities[i]
		} else {
			partialCities = append(partialCities, cities[i])
		}
	}

	tryCity := func(city catalog.City) ([]catalog.Product, error) {
		brands, err := a.Store.SearchBrandsInCity(ctx, city.ID, brandName)
		if err != nil || len(brands) == 0 {
			return nil, err
		}
		var exactBrand *catalog.Brand
		var partialBrands []catalog.Brand
		for i := range brands {
			if isExactBrand(brands[i], brandName) && exactBrand == nil {
				exactBrand = &brands[i]
			} else {
				partialBrands = append(partialBrands, brands[i])
			}
		}
		ordered := make([]catalog.Brand, 0, len(brands))
		if exactBrand != nil {
			ordered = append(ordered, *exactBrand)
		}
		ordered = append(ordered, partialBrands...)

		for _, b := range ordered {
			products, err := a.Store.GetProductsByBrand(ctx, b.ID)
			if err != nil {
				return nil, err
			}
			if len(products) > 0 {
				return products, nil
			}
		}
		return nil, nil
	}

	if exactCity != nil {
		if products, err := tryCity(*exactCity); err != nil || len(products) > 0 {
			return products, err
		}
	}
	for _, c := range partialCities {
		if products, err := tryCity(c); err != nil || len(products) > 0 {
			return products, err
		}
	}
	return nil, nil
}

type cheapestProduct struct {
	Packing string  `json:"packing"`
	Price   float64 `json:"price"`
	BrandID int     `json:"brand_id"`
	TitleAr string  `json:"title_ar"`
	TitleEn string  `json:"title_en"`
}

func (a *Agent) cheapestProducts(ctx context.Context, cityName string) ([]cheapestProduct, error) {
	city, ok, err := a.bestCity(ctx, cityName)
	if err != nil || !ok {
		return nil, err
	}

	brands, err := a.Store.GetBrandsByCity(ctx, city.ID)
	if err != nil {
		return nil, err
	}

	cheapest := make(map[string]cheapestProduct)
	for _, b := range brands {
		products, err := a.Store.GetProductsByBrand(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			existing, found := cheapest[p.Packing]
			if !found || p.ContractPrice < existing.Price {
				cheapest[p.Packing] = cheapestProduct{
					Packing: p.Packing,
					Price:   p.ContractPrice,
					BrandID: p.BrandID,
					TitleAr: p.TitleAr,
					TitleEn: p.TitleEn,
				}
			}
		}
	}

	out := make([]cheapestProduct, 0, len(cheapest))
	for _, v := range cheapest {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Packing < out[j].Packing })
	return out, nil
}

type availabilityResult struct {
	Available bool   `json:"available"`
	Rationale string `json:"rationale"`
}

func (a *Agent) checkAvailability(ctx context.Context, cityName, kind, name string) (availabilityResult, error) {
	city, ok, err := a.bestCity(ctx, cityName)
	if err != nil {
		return availabilityResult{}, err
	}
	if !ok {
		return availabilityResult{Available: false, Rationale: "city not served"}, nil
	}

	switch kind {
	case "brand":
		brands, err := a.Store.SearchBrandsInCity(ctx, city.ID, name)
		if err != nil {
			return availabilityResult{}, err
		}
		if len(brands) == 0 {
			return availabilityResult{Available: false, Rationale: "brand not available in " + city.NameEn}, nil
		}
		return availabilityResult{Available: true, Rationale: "brand available in " + city.NameEn}, nil
	case "product":
		brands, err := a.Store.GetBrandsByCity(ctx, city.ID)
		if err != nil {
			return availabilityResult{}, err
		}
		for _, b := range brands {
			products, err := a.Store.GetProductsByBrand(ctx, b.ID)
			if err != nil {
				return availabilityResult{}, err
			}
			for _, p := range products {
				if equalsFold(p.TitleAr, name) || equalsFold(p.TitleEn, name) || strings.Contains(langutil.NormalizeArabic(p.TitleAr), langutil.NormalizeArabic(name)) {
					return availabilityResult{Available: true, Rationale: "product available in " + city.NameEn}, nil
				}
			}
		}
		return availabilityResult{Available: false, Rationale: "product not available in " + city.NameEn}, nil
	default:
		return availabilityResult{Available: true, Rationale: "city served: " + city.NameEn}, nil
	}
}
