package catalog

import "context"

// Store is the C2 Catalog Store contract: typed read/write access to
// cities, brands, products and sync logs, backing both the read-only
// catalog API (§6.2) and the catalog query agent's tools (§4.7).
type Store interface {
	// --- reads, used by C9's tools and the §6.2 HTTP API ---

	GetAllCities(ctx context.Context) ([]City, error)
	GetCity(ctx context.Context, id int) (City, error)
	SearchCities(ctx context.Context, query string) ([]City, error)

	GetAllBrands(ctx context.Context) ([]Brand, error)
	GetBrand(ctx context.Context, id int) (Brand, error)
	GetBrandsByCity(ctx context.Context, cityID int) ([]Brand, error)
	SearchBrandsInCity(ctx context.Context, cityID int, query string) ([]Brand, error)

	GetAllProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id uint) (Product, error)
	GetProductsByBrand(ctx context.Context, brandID int) ([]Product, error)
	SearchProducts(ctx context.Context, query string) ([]Product, error)

	CityServesBrand(ctx context.Context, cityID, brandID int) (bool, error)

	FindDistrict(ctx context.Context, normalizedName string) (District, bool, error)

	// --- writes, used by C11's clean-slate sync ---

	ReplaceAll(ctx context.Context, data SyncSnapshot) error

	CreateSyncLog(ctx context.Context, log SyncLog) (SyncLog, error)
	UpdateSyncLog(ctx context.Context, log SyncLog) error
	RecentSyncLogs(ctx context.Context, limit int) ([]SyncLog, error)
}

// SyncSnapshot is the full merged result of one clean-slate sync run,
// handed to Store.ReplaceAll to apply atomically under FK constraints
// (spec §4.10 steps 1-6).
type SyncSnapshot struct {
	Cities     []City
	Brands     []Brand
	Products   []Product
	CityBrands []CityBrand
}
