package catalogagent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abarwater/aqua-router/domain/catalog"
	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/domain/llm"
)

// fakeStore is an in-memory catalog.Store good enough to exercise the
// agent's dispatch and cascading search logic without a database.
type fakeStore struct {
	cities    []catalog.City
	brands    []catalog.Brand
	products  []catalog.Product
	cityBrand map[int][]int // cityID -> brandIDs
	districts []catalog.District
}

func (s *fakeStore) GetAllCities(ctx context.Context) ([]catalog.City, error) { return s.cities, nil }

func (s *fakeStore) GetCity(ctx context.Context, id int) (catalog.City, error) {
	for _, c := range s.cities {
		if c.ID == id {
			return c, nil
		}
	}
	return catalog.City{}, nil
}

func (s *fakeStore) SearchCities(ctx context.Context, query string) ([]catalog.City, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	var exact, partial []catalog.City
	for _, c := range s.cities {
		if strings.EqualFold(c.NameAr, query) || strings.EqualFold(c.NameEn, query) {
			exact = append(exact, c)
		} else if strings.Contains(strings.ToLower(c.NameAr), q) || strings.Contains(strings.ToLower(c.NameEn), q) {
			partial = append(partial, c)
		}
	}
	return append(exact, partial...), nil
}

func (s *fakeStore) GetAllBrands(ctx context.Context) ([]catalog.Brand, error) { return s.brands, nil }

func (s *fakeStore) GetBrand(ctx context.Context, id int) (catalog.Brand, error) {
	for _, b := range s.brands {
		if b.ID == id {
			return b, nil
		}
	}
	return catalog.Brand{}, nil
}

func (s *fakeStore) GetBrandsByCity(ctx context.Context, cityID int) ([]catalog.Brand, error) {
	var out []catalog.Brand
	for _, id := range s.cityBrand[cityID] {
		b, _ := s.GetBrand(ctx, id)
		out = append(out, b)
	}
	return out, nil
}

func (s *fakeStore) SearchBrandsInCity(ctx context.Context, cityID int, query string) ([]catalog.Brand, error) {
	inCity, _ := s.GetBrandsByCity(ctx, cityID)
	q := strings.ToLower(strings.TrimSpace(query))
	var exact, partial []catalog.Brand
	for _, b := range inCity {
		if strings.EqualFold(b.TitleAr, query) || strings.EqualFold(b.TitleEn, query) {
			exact = append(exact, b)
		} else if strings.Contains(strings.ToLower(b.TitleAr), q) || strings.Contains(strings.ToLower(b.TitleEn), q) {
			partial = append(partial, b)
		}
	}
	return append(exact, partial...), nil
}

func (s *fakeStore) GetAllProducts(ctx context.Context) ([]catalog.Product, error) {
	return s.products, nil
}

func (s *fakeStore) GetProduct(ctx context.Context, id uint) (catalog.Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return catalog.Product{}, nil
}

func (s *fakeStore) GetProductsByBrand(ctx context.Context, brandID int) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range s.products {
		if p.BrandID == brandID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) SearchProducts(ctx context.Context, query string) ([]catalog.Product, error) {
	return nil, nil
}

func (s *fakeStore) CityServesBrand(ctx context.Context, cityID, brandID int) (bool, error) {
	for _, id := range s.cityBrand[cityID] {
		if id == brandID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) FindDistrict(ctx context.Context, normalizedName string) (catalog.District, bool, error) {
	for _, d := range s.districts {
		if d.NameAr == normalizedName || d.NameEn == normalizedName {
			return d, true, nil
		}
	}
	return catalog.District{}, false, nil
}

func (s *fakeStore) ReplaceAll(ctx context.Context, data catalog.SyncSnapshot) error { return nil }
func (s *fakeStore) CreateSyncLog(ctx context.Context, log catalog.SyncLog) (catalog.SyncLog, error) {
	return log, nil
}
func (s *fakeStore) UpdateSyncLog(ctx context.Context, log catalog.SyncLog) error { return nil }
func (s *fakeStore) RecentSyncLogs(ctx context.Context, limit int) ([]catalog.SyncLog, error) {
	return nil, nil
}

func baseStore() *fakeStore {
	return &fakeStore{
		cities: []catalog.City{
			{ID: 1, NameAr: "الرياض", NameEn: "Riyadh"},
			{ID: 2, NameAr: "جدة", NameEn: "Jeddah"},
		},
		brands: []catalog.Brand{
			{ID: 10, TitleAr: "نستله", TitleEn: "Nestle"},
			{ID: 11, TitleAr: "نستله بلس", TitleEn: "Nestle Plus"},
		},
		products: []catalog.Product{
			{ID: 100, ExternalID: 1, BrandID: 10, TitleAr: "عبوة صغيرة", TitleEn: "Small Bottle", Packing: "330ml", ContractPrice: 5},
			{ID: 101, ExternalID: 2, BrandID: 11, TitleAr: "عبوة كبيرة", TitleEn: "Large Bottle", Packing: "1.5L", ContractPrice: 8},
		},
		cityBrand: map[int][]int{1: {10, 11}, 2: {10}},
	}
}

type fakeChat struct {
	responses []llm.ChatResponse
	i         int
	err       error
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	if f.i >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	r := f.responses[f.i]
	f.i++
	return r, nil
}

func TestRunPlainTextNoToolCalls(t *testing.T) {
	agent := &Agent{Store: baseStore(), Chat: &fakeChat{responses: []llm.ChatResponse{{Text: "أهلاً بك"}}}}
	reply, err := agent.Run(context.Background(), "مرحبا", conversation.LanguageArabic, nil)
	require.NoError(t, err)
	assert.Equal(t, "أهلاً بك", reply)
}

func TestRunExecutesToolCallThenReturnsText(t *testing.T) {
	chat := &fakeChat{responses: []llm.ChatResponse{
		{ToolCalls: []llm.ToolCall{{ID: "1", Name: "get_all_cities", Args: map[string]any{}}}},
		{Text: "نخدم الرياض وجدة"},
	}}
	agent := &Agent{Store: baseStore(), Chat: chat}
	reply, err := agent.Run(context.Background(), "وش المدن المتاحة", conversation.LanguageArabic, nil)
	require.NoError(t, err)
	assert.Equal(t, "نخدم الرياض وجدة", reply)
}

func TestRunCapsToolCallsAtMax(t *testing.T) {
	loopResponse := llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "x", Name: "get_all_cities", Args: map[string]any{}}}}
	responses := make([]llm.ChatResponse, 0, maxToolCalls)
	for i := 0; i < maxToolCalls; i++ {
		responses = append(responses, loopResponse)
	}
	chat := &fakeChat{responses: responses}
	agent := &Agent{Store: baseStore(), Chat: chat}

	reply, err := agent.Run(context.Background(), "كم سعر المويه", conversation.LanguageArabic, nil)
	require.NoError(t, err)
	assert.Equal(t, tooManyToolCallsAr, reply)
}

func TestCascadingProductsExactCityExactBrand(t *testing.T) {
	agent := &Agent{Store: baseStore()}
	products, err := agent.cascadingProducts(context.Background(), "Nestle", "Riyadh")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Small Bottle", products[0].TitleEn)
}

func TestCascadingProductsFallsBackToPartialBrand(t *testing.T) {
	agent := &Agent{Store: baseStore()}
	// "Plus" only partially matches "Nestle Plus" in Riyadh; no exact
	// brand match exists for that fragment, so the cascade falls to the
	// partial-brand tier within the exact city.
	products, err := agent.cascadingProducts(context.Background(), "Plus", "Riyadh")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Large Bottle", products[0].TitleEn)
}

func TestCascadingProductsNoCityMatchReturnsEmpty(t *testing.T) {
	agent := &Agent{Store: baseStore()}
	products, err := agent.cascadingProducts(context.Background(), "Nestle", "Dammam")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestDistrictPreResolutionShortCircuitsUnservedCity(t *testing.T) {
	store := baseStore()
	store.districts = []catalog.District{{NameAr: "حي العليا", NameEn: "Al Olaya", CityName: "Unserved City"}}
	agent := &Agent{Store: store}

	reply, short := agent.districtPreResolution(context.Background(), "حي العليا وين اطلب", conversation.LanguageArabic)
	assert.True(t, short)
	assert.Equal(t, notServedMessageAr, reply)
}

func TestDistrictPreResolutionLetsServedCityThrough(t *testing.T) {
	store := baseStore()
	store.districts = []catalog.District{{NameAr: "حي العليا", NameEn: "Al Olaya", CityName: "Riyadh"}}
	agent := &Agent{Store: store}

	_, short := agent.districtPreResolution(context.Background(), "حي العليا وين اطلب", conversation.LanguageArabic)
	assert.False(t, short)
}

func TestCheapestProductsPicksMinPerPacking(t *testing.T) {
	store := baseStore()
	store.products = append(store.products, catalog.Product{
		ID: 102, ExternalID: 3, BrandID: 10, TitleAr: "عبوة صغيرة رخيصة", TitleEn: "Cheap Small", Packing: "330ml", ContractPrice: 3,
	})
	agent := &Agent{Store: store}

	out, err := agent.cheapestProducts(context.Background(), "Riyadh")
	require.NoError(t, err)
	for _, p := range out {
		if p.Packing == "330ml" {
			assert.Equal(t, float64(3), p.Price)
		}
	}
}
