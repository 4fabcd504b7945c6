// Package catalog holds the C2 Catalog Store entities: cities, brands,
// products, the city<->brand association, districts and sync logs.
package catalog

import "time"

// City's ID equals the upstream id; it is never a surrogate key (spec §3).
type City struct {
	ID        int
	NameAr    string
	NameEn    string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Brand's ID equals the upstream id. TitleAr/TitleEn are stored already
// normalized (water-prefix stripped, Arabic letters folded, see §4.5).
type Brand struct {
	ID        int
	TitleAr   string
	TitleEn   string
	ImageURL  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product has a surrogate ID; ExternalID may repeat across brands. The
// pair (ExternalID, BrandID) is unique; the same external product can
// appear under multiple brands with independent prices (spec §3).
type Product struct {
	ID            uint
	ExternalID    int
	BrandID       int
	TitleAr       string
	TitleEn       string
	Packing       string
	ContractPrice float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CityBrand is the m:n association: a brand is available in a city iff
// the pair exists.
type CityBrand struct {
	CityID  int
	BrandID int
}

// District maps a neighborhood name to the city that serves it. Read-only
// at runtime; populated out of band from a reference table.
type District struct {
	ID       uint
	NameAr   string
	NameEn   string
	CityName string
}

// SyncStatus is the lifecycle of one SyncLog row.
type SyncStatus string

const (
	SyncStarted SyncStatus = "started"
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
	SyncFailed  SyncStatus = "failed"
)

// SyncResourceKind is the resource a SyncLog row reports on.
type SyncResourceKind string

const (
	SyncResourceCities   SyncResourceKind = "cities"
	SyncResourceBrands   SyncResourceKind = "brands"
	SyncResourceProducts SyncResourceKind = "products"
)

// TriggerKind records what started a sync run (ambient addition, SPEC_FULL §3).
type TriggerKind string

const (
	TriggeredBySchedule TriggerKind = "schedule"
	TriggeredByManual   TriggerKind = "manual"
)

// SyncLog is one row per sync attempt, per resource kind.
type SyncLog struct {
	ID               uint
	Resource         SyncResourceKind
	Status           SyncStatus
	RecordsProcessed int
	ErrorMessage     string
	TriggeredBy      TriggerKind
	StartedAt        time.Time
	EndedAt          *time.Time
}
