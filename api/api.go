// Package api exposes the read-only catalog HTTP surface (spec §6.2) and
// the sync control surface (spec §6.3), grounded on the teacher's
// ui/rest/*.go handler shape (one struct per resource, InitRestX(app,
// service) registering routes, c.UserContext() passed straight into the
// service call) adapted to this spec's fixed `{status, data}` envelope
// instead of the teacher's utils.ResponseData.
package api

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/abarwater/aqua-router/domain/catalog"
	"github.com/abarwater/aqua-router/pkg/apierr"
	"github.com/abarwater/aqua-router/syncworker"
)

// envelope is the fixed response shape spec §6.2 requires for every
// catalog endpoint.
type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func ok(data any) envelope       { return envelope{Status: "success", Data: data} }
func fail(msg string) envelope   { return envelope{Status: "error", Message: msg} }

// Catalog registers the read-only catalog endpoints.
type Catalog struct {
	Store catalog.Store
}

// RegisterCatalog mounts /api/cities, /api/brands, /api/products per
// spec §6.2.
func RegisterCatalog(app fiber.Router, store catalog.Store) {
	h := Catalog{Store: store}

	app.Get("/api/cities", h.listCities)
	app.Get("/api/cities/:id", h.getCity)
	app.Get("/api/cities/:id/brands", h.cityBrands)
	app.Get("/api/cities/:id/full", h.cityFull)

	app.Get("/api/brands", h.listBrands)
	app.Get("/api/brands/:id", h.getBrand)
	app.Get("/api/brands/:id/products", h.brandProducts)
	app.Get("/api/brands/:id/full", h.brandFull)

	app.Get("/api/products", h.listProducts)
	app.Get("/api/products/:id", h.getProduct)
}

func (h *Catalog) listCities(c *fiber.Ctx) error {
	if search := c.Query("search"); search != "" {
		cities, err := h.Store.SearchCities(c.UserContext(), search)
		if err != nil {
			return jsonErr(c, err)
		}
		return c.JSON(ok(cities))
	}
	cities, err := h.Store.GetAllCities(c.UserContext())
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(cities))
}

func (h *Catalog) getCity(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fail("invalid city id"))
	}
	city, err := h.Store.GetCity(c.UserContext(), id)
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(city))
}

func (h *Catalog) cityBrands(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fail("invalid city id"))
	}
	if search := c.Query("search"); search != "" {
		brands, err := h.Store.SearchBrandsInCity(c.UserContext(), id, search)
		if err != nil {
			return jsonErr(c, err)
		}
		return c.JSON(ok(brands))
	}
	brands, err := h.Store.GetBrandsByCity(c.UserContext(), id)
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(brands))
}

// cityFullResponse is the composite view for /api/cities/{id}/full:
// the city plus every brand it serves.
type cityFullResponse struct {
	City   catalog.City    `json:"city"`
	Brands []catalog.Brand `json:"brands"`
}

func (h *Catalog) cityFull(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fail("invalid city id"))
	}
	city, err := h.Store.GetCity(c.UserContext(), id)
	if err != nil {
		return jsonErr(c, err)
	}
	brands, err := h.Store.GetBrandsByCity(c.UserContext(), id)
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(cityFullResponse{City: city, Brands: brands}))
}

func (h *Catalog) listBrands(c *fiber.Ctx) error {
	brands, err := h.Store.GetAllBrands(c.UserContext())
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(brands))
}

func (h *Catalog) getBrand(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fail("invalid brand id"))
	}
	brand, err := h.Store.GetBrand(c.UserContext(), id)
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(brand))
}

func (h *Catalog) brandProducts(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fail("invalid brand id"))
	}
	products, err := h.Store.GetProductsByBrand(c.UserContext(), id)
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(products))
}

type brandFullResponse struct {
	Brand    catalog.Brand     `json:"brand"`
	Products []catalog.Product `json:"products"`
}

func (h *Catalog) brandFull(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fail("invalid brand id"))
	}
	brand, err := h.Store.GetBrand(c.UserContext(), id)
	if err != nil {
		return jsonErr(c, err)
	}
	products, err := h.Store.GetProductsByBrand(c.UserContext(), id)
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(brandFullResponse{Brand: brand, Products: products}))
}

func (h *Catalog) listProducts(c *fiber.Ctx) error {
	if search := c.Query("search"); search != "" {
		products, err := h.Store.SearchProducts(c.UserContext(), search)
		if err != nil {
			return jsonErr(c, err)
		}
		return c.JSON(ok(products))
	}
	products, err := h.Store.GetAllProducts(c.UserContext())
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(products))
}

func (h *Catalog) getProduct(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fail("invalid product id"))
	}
	product, err := h.Store.GetProduct(c.UserContext(), uint(id))
	if err != nil {
		return jsonErr(c, err)
	}
	return c.JSON(ok(product))
}

func jsonErr(c *fiber.Ctx, err error) error {
	return c.Status(apierr.StatusOf(err)).JSON(fail(err.Error()))
}

// Sync registers the sync control endpoints (spec §6.3).
type Sync struct {
	Worker *syncworker.Worker
}

func RegisterSync(app fiber.Router, worker *syncworker.Worker) {
	h := Sync{Worker: worker}
	app.Post("/data/sync", h.runOnce)
	app.Get("/data/sync/status", h.status)
	app.Post("/data/sync/start", h.start)
	app.Post("/data/sync/stop", h.stop)
}

func (h *Sync) runOnce(c *fiber.Ctx) error {
	mode := c.Query("mode")
	var report syncworker.Report
	var err error
	if mode == "dry-run" {
		report, err = h.Worker.RunDryRun(c.UserContext(), catalog.TriggeredByManual)
	} else {
		report, err = h.Worker.RunOnce(c.UserContext(), catalog.TriggeredByManual)
	}
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fail(err.Error()))
	}
	return c.JSON(ok(report))
}

type syncStatusResponse struct {
	IsRunning     bool     `json:"is_running"`
	ScheduledJobs []string `json:"scheduled_jobs"`
	NextSync      string   `json:"next_sync,omitempty"`
}

func (h *Sync) status(c *fiber.Ctx) error {
	resp := syncStatusResponse{IsRunning: h.Worker.IsRunning(), ScheduledJobs: []string{}}
	if next, ok := h.Worker.NextSyncTime(); ok {
		resp.ScheduledJobs = []string{h.Worker.DailyTime}
		resp.NextSync = next.Format("2006-01-02T15:04:05Z07:00")
	}
	return c.JSON(ok(resp))
}

func (h *Sync) start(c *fiber.Ctx) error {
	dailyTime := c.Query("daily_time")
	if dailyTime == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fail("daily_time is required"))
	}
	h.Worker.DailyTime = dailyTime
	// The scheduler loop outlives this single request, so it runs under a
	// background context rather than c.UserContext().
	h.Worker.Start(context.Background())
	return c.JSON(ok(nil))
}

func (h *Sync) stop(c *fiber.Ctx) error {
	h.Worker.Stop()
	return c.JSON(ok(nil))
}
