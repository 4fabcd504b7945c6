// Package gateway implements C1: posting outbound text to the WhatsApp
// gateway, grounded on the teacher's
// infrastructure/whatsapp/adapter/webhook.go::submitWebhook retry loop —
// replaced here by the shared core/retry primitive per Design Note §9
// instead of its own hand-rolled sleep/backoff.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abarwater/aqua-router/core/retry"
)

// endpointTemplate is one of the ordered alternates tried on non-2xx,
// spec §4.9/§6.4. It builds the full URL from the base URL, the
// path-escaped phone and the query-encoded text.
type endpointTemplate func(baseURL, phone, text string) (string, error)

func primaryEndpoint(baseURL, phone, text string) (string, error) {
	u, err := url.Parse(baseURL + "/sendSessionMessage/" + url.PathEscape(phone))
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("messageText", text)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func legacySendMessageEndpoint(baseURL, phone, text string) (string, error) {
	u, err := url.Parse(baseURL + "/sendMessage")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("whatsappNumber", phone)
	q.Set("messageText", text)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func v1PrefixEndpoint(baseURL, phone, text string) (string, error) {
	u, err := url.Parse(baseURL + "/v1/sendSessionMessage/" + url.PathEscape(phone))
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("messageText", text)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// endpointOrder is the fixed fallback sequence from spec §4.9.
var endpointOrder = []endpointTemplate{primaryEndpoint, legacySendMessageEndpoint, v1PrefixEndpoint}

// statusError carries the HTTP status so core/retry's IsRetryableStatus
// predicate can inspect it.
type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string       { return fmt.Sprintf("gateway: %s returned status %d", e.url, e.status) }
func (e *statusError) HTTPStatus() int     { return e.status }

// Client posts outbound messages via the WATI-style gateway API.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	BearerToken string
	Logger     *logrus.Logger
	RetryPolicy retry.Policy
}

// New constructs a Client with sane defaults.
func New(baseURL, bearerToken string, logger *logrus.Logger) *Client {
	return &Client{
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		Logger:      logger,
		RetryPolicy: retry.DefaultPolicy(),
	}
}

// Send posts text to phone. Failures never propagate as an error into the
// orchestrator (spec §4.9) — they are logged and the boolean return
// reports success, letting the caller mark the journey as failed without
// panicking or retrying again above this layer.
func (c *Client) Send(ctx context.Context, phone, text string) bool {
	var lastErr error
	for i, buildURL := range endpointOrder {
		target, err := buildURL(c.BaseURL, phone, text)
		if err != nil {
			lastErr = err
			continue
		}

		err = retry.Do(ctx, c.RetryPolicy, func(ctx context.Context) error {
			return c.post(ctx, target)
		})
		if err == nil {
			return true
		}
		lastErr = err
		c.Logger.WithFields(logrus.Fields{
			"endpoint_variant": i,
			"phone":            phone,
		}).WithError(err).Warn("gateway send attempt failed, trying next endpoint variant")
	}

	c.Logger.WithFields(logrus.Fields{"phone": phone}).WithError(lastErr).Error("gateway send failed on all endpoint variants")
	return false
}

func (c *Client) post(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.BearerToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, url: target}
	}
	return nil
}
