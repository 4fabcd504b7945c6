// Package catalog implements domain/catalog.Store on top of GORM, reusing
// the teacher's model/mapper split (botengine/repository/bot_gorm.go).
// ReplaceAll implements the clean-slate sync procedure from spec §4.10
// inside a single transaction with FK enforcement disabled for its
// duration.
package catalog

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/abarwater/aqua-router/domain/catalog"
)

type cityModel struct {
	ID        int `gorm:"primaryKey"`
	NameAr    string `gorm:"column:name_ar"`
	NameEn    string `gorm:"column:name_en"`
	Latitude  float64
	Longitude float64
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (cityModel) TableName() string { return "cities" }

type brandModel struct {
	ID        int `gorm:"primaryKey"`
	TitleAr   string `gorm:"column:title_ar"`
	TitleEn   string `gorm:"column:title_en"`
	ImageURL  string `gorm:"column:image_url"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (brandModel) TableName() string { return "brands" }

type productModel struct {
	ID            uint `gorm:"primaryKey;autoIncrement"`
	ExternalID    int  `gorm:"column:external_id;uniqueIndex:idx_external_brand"`
	BrandID       int  `gorm:"column:brand_id;uniqueIndex:idx_external_brand;index"`
	TitleAr       string `gorm:"column:title_ar"`
	TitleEn       string `gorm:"column:title_en"`
	Packing       string `gorm:"column:packing"`
	ContractPrice float64 `gorm:"column:contract_price"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (productModel) TableName() string { return "products" }

type cityBrandModel struct {
	CityID  int `gorm:"column:city_id;primaryKey"`
	BrandID int `gorm:"column:brand_id;primaryKey"`
}

func (cityBrandModel) TableName() string { return "city_brands" }

type districtModel struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	NameAr   string `gorm:"column:name_ar"`
	NameEn   string `gorm:"column:name_en"`
	CityName string `gorm:"column:city_name"`
}

func (districtModel) TableName() string { return "districts" }

type syncLogModel struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	Resource         string `gorm:"column:resource"`
	Status           string `gorm:"column:status"`
	RecordsProcessed int    `gorm:"column:records_processed"`
	ErrorMessage     string `gorm:"column:error_message"`
	TriggeredBy      string `gorm:"column:triggered_by"`
	StartedAt        time.Time  `gorm:"column:started_at"`
	EndedAt          *time.Time `gorm:"column:ended_at"`
}

func (syncLogModel) TableName() string { return "sync_logs" }

// Store implements catalog.Store.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&cityModel{},
		&brandModel{},
		&productModel{},
		&cityBrandModel{},
		&districtModel{},
		&syncLogModel{},
	); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) GetAllCities(ctx context.Context) ([]catalog.City, error) {
	var models []cityModel
	if err := s.db.WithContext(ctx).Order("name_en ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, fromCityModel), nil
}

func (s *Store) GetCity(ctx context.Context, id int) (catalog.City, error) {
	var m cityModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return catalog.City{}, err
	}
	return fromCityModel(m), nil
}

func (s *Store) SearchCities(ctx context.Context, query string) ([]catalog.City, error) {
	like := "%" + query + "%"
	var exact, partial []cityModel
	if err := s.db.WithContext(ctx).
		Where("name_ar = ? OR name_en = ?", query, query).
		Find(&exact).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).
		Where("(name_ar LIKE ? OR name_en LIKE ?) AND name_ar <> ? AND name_en <> ?", like, like, query, query).
		Find(&partial).Error; err != nil {
		return nil, err
	}
	return append(mapSlice(exact, fromCityModel), mapSlice(partial, fromCityModel)...), nil
}

func (s *Store) GetAllBrands(ctx context.Context) ([]catalog.Brand, error) {
	var models []brandModel
	if err := s.db.WithContext(ctx).Order("title_en ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, fromBrandModel), nil
}

func (s *Store) GetBrand(ctx context.Context, id int) (catalog.Brand, error) {
	var m brandModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return catalog.Brand{}, err
	}
	return fromBrandModel(m), nil
}

func (s *Store) GetBrandsByCity(ctx context.Context, cityID int) ([]catalog.Brand, error) {
	var models []brandModel
	err := s.db.WithContext(ctx).
		Joins("JOIN city_brands ON city_brands.brand_id = brands.id").
		Where("city_brands.city_id = ?", cityID).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return mapSlice(models, fromBrandModel), nil
}

func (s *Store) SearchBrandsInCity(ctx context.Context, cityID int, query string) ([]catalog.Brand, error) {
	like := "%" + query + "%"
	base := s.db.WithContext(ctx).
		Joins("JOIN city_brands ON city_brands.brand_id = brands.id").
		Where("city_brands.city_id = ?", cityID)

	var exact []brandModel
	if err := base.Session(&gorm.Session{}).
		Where("brands.title_ar = ? OR brands.title_en = ?", query, query).
		Find(&exact).Error; err != nil {
		return nil, err
	}

	var partial []brandModel
	if err := base.Session(&gorm.Session{}).
		Where("(brands.title_ar LIKE ? OR brands.title_en LIKE ?) AND brands.title_ar <> ? AND brands.title_en <> ?", like, like, query, query).
		Find(&partial).Error; err != nil {
		return nil, err
	}

	return append(mapSlice(exact, fromBrandModel), mapSlice(partial, fromBrandModel)...), nil
}

func (s *Store) GetAllProducts(ctx context.Context) ([]catalog.Product, error) {
	var models []productModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, fromProductModel), nil
}

func (s *Store) GetProduct(ctx context.Context, id uint) (catalog.Product, error) {
	var m productModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return catalog.Product{}, err
	}
	return fromProductModel(m), nil
}

func (s *Store) GetProductsByBrand(ctx context.Context, brandID int) ([]catalog.Product, error) {
	var models []productModel
	if err := s.db.WithContext(ctx).Where("brand_id = ?", brandID).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, fromProductModel), nil
}

func (s *Store) SearchProducts(ctx context.Context, query string) ([]catalog.Product, error) {
	like := "%" + query + "%"
	var models []productModel
	if err := s.db.WithContext(ctx).
		Where("title_ar LIKE ? OR title_en LIKE ?", like, like).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, fromProductModel), nil
}

func (s *Store) CityServesBrand(ctx context.Context, cityID, brandID int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&cityBrandModel{}).
		Where("city_id = ? AND brand_id = ?", cityID, brandID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) FindDistrict(ctx context.Context, normalizedName string) (catalog.District, bool, error) {
	var m districtModel
	err := s.db.WithContext(ctx).
		Where("name_ar = ? OR name_en = ?", normalizedName, normalizedName).
		First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return catalog.District{}, false, nil
	}
	if err != nil {
		return catalog.District{}, false, err
	}
	return catalog.District{ID: m.ID, NameAr: m.NameAr, NameEn: m.NameEn, CityName: m.CityName}, true, nil
}

// ReplaceAll implements spec §4.10 steps 1-6: disable FK enforcement,
// delete in reverse dependency order, re-enable FK, then bulk-insert the
// merged snapshot. Every statement runs inside one transaction so a
// failure midway leaves the prior state intact rather than a half-wiped
// catalog.
func (s *Store) ReplaceAll(ctx context.Context, data catalog.SyncSnapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := withForeignKeysDisabled(tx, func() error {
			if err := tx.Exec("DELETE FROM products").Error; err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM city_brands").Error; err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM brands").Error; err != nil {
				return err
			}
			return tx.Exec("DELETE FROM cities").Error
		}); err != nil {
			return err
		}

		if len(data.Cities) > 0 {
			if err := tx.CreateInBatches(mapSlice(data.Cities, toCityModel), 200).Error; err != nil {
				return err
			}
		}
		if len(data.Brands) > 0 {
			if err := tx.CreateInBatches(mapSlice(data.Brands, toBrandModel), 200).Error; err != nil {
				return err
			}
		}
		if len(data.CityBrands) > 0 {
			if err := tx.CreateInBatches(mapSlice(data.CityBrands, toCityBrandModel), 500).Error; err != nil {
				return err
			}
		}
		if len(data.Products) > 0 {
			if err := tx.CreateInBatches(mapSlice(data.Products, toProductModel), 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// withForeignKeysDisabled brackets fn with PRAGMA foreign_keys off/on,
// matching spec §4.10 step 1/3. A no-op (and harmless) pragma on postgres,
// where the transaction's deferred constraints handle ordering instead.
func withForeignKeysDisabled(tx *gorm.DB, fn func() error) error {
	if tx.Dialector.Name() == "sqlite" {
		if err := tx.Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
			return err
		}
		defer tx.Exec("PRAGMA foreign_keys = ON")
	}
	return fn()
}

func (s *Store) CreateSyncLog(ctx context.Context, log catalog.SyncLog) (catalog.SyncLog, error) {
	m := toSyncLogModel(log)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return catalog.SyncLog{}, err
	}
	return fromSyncLogModel(m), nil
}

func (s *Store) UpdateSyncLog(ctx context.Context, log catalog.SyncLog) error {
	return s.db.WithContext(ctx).Save(toSyncLogModel(log)).Error
}

func (s *Store) RecentSyncLogs(ctx context.Context, limit int) ([]catalog.SyncLog, error) {
	var models []syncLogModel
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, fromSyncLogModel), nil
}

func fromCityModel(m cityModel) catalog.City {
	return catalog.City{ID: m.ID, NameAr: m.NameAr, NameEn: m.NameEn, Latitude: m.Latitude, Longitude: m.Longitude, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func toCityModel(c catalog.City) cityModel {
	return cityModel{ID: c.ID, NameAr: c.NameAr, NameEn: c.NameEn, Latitude: c.Latitude, Longitude: c.Longitude}
}

func fromBrandModel(m brandModel) catalog.Brand {
	return catalog.Brand{ID: m.ID, TitleAr: m.TitleAr, TitleEn: m.TitleEn, ImageURL: m.ImageURL, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func toBrandModel(b catalog.Brand) brandModel {
	return brandModel{ID: b.ID, TitleAr: b.TitleAr, TitleEn: b.TitleEn, ImageURL: b.ImageURL}
}

func fromProductModel(m productModel) catalog.Product {
	return catalog.Product{
		ID: m.ID, ExternalID: m.ExternalID, BrandID: m.BrandID,
		TitleAr: m.TitleAr, TitleEn: m.TitleEn, Packing: m.Packing,
		ContractPrice: m.ContractPrice, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func toProductModel(p catalog.Product) productModel {
	return productModel{
		ExternalID: p.ExternalID, BrandID: p.BrandID,
		TitleAr: p.TitleAr, TitleEn: p.TitleEn, Packing: p.Packing,
		ContractPrice: p.ContractPrice,
	}
}

func toCityBrandModel(cb catalog.CityBrand) cityBrandModel {
	return cityBrandModel{CityID: cb.CityID, BrandID: cb.BrandID}
}

func toSyncLogModel(l catalog.SyncLog) syncLogModel {
	return syncLogModel{
		ID: l.ID, Resource: string(l.Resource), Status: string(l.Status),
		RecordsProcessed: l.RecordsProcessed, ErrorMessage: l.ErrorMessage,
		TriggeredBy: string(l.TriggeredBy), StartedAt: l.StartedAt, EndedAt: l.EndedAt,
	}
}

func fromSyncLogModel(m syncLogModel) catalog.SyncLog {
	return catalog.SyncLog{
		ID: m.ID, Resource: catalog.SyncResourceKind(m.Resource), Status: catalog.SyncStatus(m.Status),
		RecordsProcessed: m.RecordsProcessed, ErrorMessage: m.ErrorMessage,
		TriggeredBy: catalog.TriggerKind(m.TriggeredBy), StartedAt: m.StartedAt, EndedAt: m.EndedAt,
	}
}

func mapSlice[T, U any](in []T, f func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}
