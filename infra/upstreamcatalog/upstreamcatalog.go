// Package upstreamcatalog is the HTTP client C11 uses to pull cities,
// brands and products from the upstream catalog API, grounded on
// original_source/services/data_scraper.py's two request helpers
// (make_api_request_with_retry and make_product_api_request_with_retry).
package upstreamcatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/abarwater/aqua-router/core/retry"
)

// RawCity/RawBrand/RawProduct mirror the upstream JSON shape closely
// enough for the sync worker to merge Arabic/English passes by id; exact
// upstream field names are an external contract (spec §1 "Out of scope").
type RawCity struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type RawBrand struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Image string `json:"image"`
}

type RawProduct struct {
	ID      int     `json:"id"`
	Title   string  `json:"title"`
	Packing string  `json:"packing"`
	Price   float64 `json:"price"`
}

type envelope[T any] struct {
	Status string `json:"status"`
	Data   []T    `json:"data"`
}

type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string   { return fmt.Sprintf("upstreamcatalog: %s returned status %d", e.url, e.status) }
func (e *statusError) HTTPStatus() int { return e.status }

// Client talks to the upstream catalog HTTP API.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	AccessKey  string

	GenericRetryPolicy retry.Policy // spec §4.10 "Generic GETs"
	ProductRetryPolicy retry.Policy // spec §4.10 "Product GETs only"
}

// New constructs a Client with the two distinct retry policies spec §4.10
// requires: generic GETs don't retry 400/404, product GETs do.
func New(baseURL, accessKey string) *Client {
	generic := retry.DefaultPolicy()
	product := retry.DefaultPolicy()
	product.IsRetryable = retry.IsRetryableProductStatus

	return &Client{
		HTTPClient:         &http.Client{Timeout: 30 * time.Second},
		BaseURL:            baseURL,
		AccessKey:          accessKey,
		GenericRetryPolicy: generic,
		ProductRetryPolicy: product,
	}
}

const (
	langArabic  = "ar"
	langEnglish = "en"
)

// GetCities fetches cities in the given language.
func (c *Client) GetCities(ctx context.Context, lang string) ([]RawCity, error) {
	var result envelope[RawCity]
	err := c.getGeneric(ctx, "/get-cities", lang, &result)
	return result.Data, err
}

// GetBrandsByCity fetches the brands available in cityID, in the given language.
func (c *Client) GetBrandsByCity(ctx context.Context, cityID int, lang string) ([]RawBrand, error) {
	var result envelope[RawBrand]
	err := c.getGeneric(ctx, fmt.Sprintf("/get-location-brands/%d", cityID), lang, &result)
	return result.Data, err
}

// GetProductsByBrand fetches brandID's products, in the given language,
// under the more tolerant product retry policy.
func (c *Client) GetProductsByBrand(ctx context.Context, brandID int, lang string) ([]RawProduct, error) {
	var result envelope[RawProduct]
	err := c.getWithPolicy(ctx, fmt.Sprintf("/get-brand-products/%d", brandID), lang, c.ProductRetryPolicy, &result)
	return result.Data, err
}

func (c *Client) getGeneric(ctx context.Context, path, lang string, out any) error {
	return c.getWithPolicy(ctx, path, lang, c.GenericRetryPolicy, out)
}

func (c *Client) getWithPolicy(ctx context.Context, path, lang string, policy retry.Policy, out any) error {
	target, err := url.JoinPath(c.BaseURL, path)
	if err != nil {
		return err
	}

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		req.Header.Set("AccessKey", c.AccessKey)
		req.Header.Set("Lang", lang)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &statusError{status: resp.StatusCode, url: target}
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}
