// Package enrich looks up extracted serial numbers against the piece
// information service. The primary lookup drives the pipeline's enrichment
// stage; the full aggregation merges inventory, product master, and vendor
// data for the piece-info API.
//
// An absent piece (404) is a normal outcome, reported as a nil record with a
// nil error. Secondary aggregation calls degrade gracefully: a failed
// product-master or vendor fetch leaves that section empty rather than
// failing the whole lookup.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/config"
	"github.com/fpang/returns-docintel/internal/retry"
)

// Record is the minimal enrichment result merged into a processing outcome.
// Empty strings mean the upstream record carried no value.
type Record struct {
	SKU    string `json:"sku"`
	Family string `json:"family"`
}

// Inventory is the piece-inventory section of an aggregate.
type Inventory struct {
	PieceNumber    string `json:"pieceNumber"`
	SKU            string `json:"sku"`
	Family         string `json:"family"`
	QuantityOnHand int    `json:"quantityOnHand"`
	VendorID       string `json:"vendorId,omitempty"`
}

// Product is the product-master section of an aggregate.
type Product struct {
	SKU         string `json:"sku"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	UnitOfSale  string `json:"unitOfSale,omitempty"`
}

// Vendor is the vendor section of an aggregate.
type Vendor struct {
	VendorID string `json:"vendorId"`
	Name     string `json:"name"`
	Email    string `json:"contactEmail,omitempty"`
}

// PieceInfo is the merged view served by the piece-info API. Product and
// Vendor are nil when their lookups failed or returned nothing.
type PieceInfo struct {
	PieceNumber string     `json:"pieceNumber"`
	Inventory   *Inventory `json:"inventory"`
	Product     *Product   `json:"product,omitempty"`
	Vendor      *Vendor    `json:"vendor,omitempty"`
	RetrievedAt time.Time  `json:"retrievedAt"`
}

// Client calls the piece information service.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	policy     retry.Policy
}

// New builds a client from pipeline configuration.
func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.PieceInfoBaseURL, "/"),
		key:        cfg.SubscriptionKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy: retry.Policy{
			MaxAttempts: cfg.MaxRetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Retryable:   transientStatus,
		},
	}
}

type statusError struct {
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("piece info service returned status %d", e.StatusCode)
}

func transientStatus(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// Lookup fetches the inventory record for a serial. A 404 means the serial
// is unknown and returns (nil, nil); any other failure is an error the
// caller may treat as non-fatal. No retry: the pipeline tolerates a missed
// enrichment, and the work item can be reprocessed.
func (c *Client) Lookup(ctx context.Context, serial, correlationID string) (*Record, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("piece info base URL not configured")
	}

	var inv Inventory
	found, err := c.get(ctx, c.baseURL+"/piece-inventory/"+serial, correlationID, &inv)
	if err != nil {
		return nil, fmt.Errorf("piece inventory lookup for %s: %w", serial, err)
	}
	if !found {
		log.Debug().Str("serial", serial).Str("correlationId", correlationID).Msg("Serial not present in piece inventory")
		return nil, nil
	}
	return &Record{SKU: inv.SKU, Family: inv.Family}, nil
}

// AggregatePieceInfo merges inventory, product master, and vendor data for
// one piece number. The inventory call is authoritative: a 404 there returns
// (nil, nil) and an error there fails the aggregation. The two secondary
// calls are retried on throttling and server errors, then degrade to nil
// sections on persistent failure.
func (c *Client) AggregatePieceInfo(ctx context.Context, pieceNumber, correlationID string) (*PieceInfo, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("piece info base URL not configured")
	}

	var inv Inventory
	found := false
	err := c.policy.Do(ctx, "enrich.inventory", func(ctx context.Context) error {
		var err error
		found, err = c.get(ctx, c.baseURL+"/piece-inventory/"+pieceNumber, correlationID, &inv)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("piece inventory lookup for %s: %w", pieceNumber, err)
	}
	if !found {
		return nil, nil
	}

	info := &PieceInfo{
		PieceNumber: pieceNumber,
		Inventory:   &inv,
		RetrievedAt: time.Now().UTC(),
	}

	if inv.SKU != "" {
		var prod Product
		err := c.policy.Do(ctx, "enrich.product", func(ctx context.Context) error {
			ok, err := c.get(ctx, c.baseURL+"/product-master/"+inv.SKU, correlationID, &prod)
			if err == nil && !ok {
				return nil
			}
			if err == nil {
				info.Product = &prod
			}
			return err
		})
		if err != nil {
			log.Warn().Err(err).Str("sku", inv.SKU).Msg("Product master unavailable, serving partial piece info")
		}
	}

	if inv.VendorID != "" {
		var ven Vendor
		err := c.policy.Do(ctx, "enrich.vendor", func(ctx context.Context) error {
			ok, err := c.get(ctx, c.baseURL+"/vendors/"+inv.VendorID, correlationID, &ven)
			if err == nil && !ok {
				return nil
			}
			if err == nil {
				info.Vendor = &ven
			}
			return err
		})
		if err != nil {
			log.Warn().Err(err).Str("vendorId", inv.VendorID).Msg("Vendor lookup unavailable, serving partial piece info")
		}
	}

	return info, nil
}

// get performs one GET and decodes a 200 body into out. Returns false for a
// 404, a statusError for other non-2xx responses.
func (c *Client) get(ctx context.Context, url, correlationID string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	if c.key != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	}
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return false, &statusError{StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}
