// Package merchant holds the merchant-owned configuration the pipeline reads:
// the product catalog and the business profile. The pipeline never mutates
// either; it works from immutable snapshots.
package merchant

import "time"

type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	SKU         string   `json:"sku"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	UnitPrice   float64  `json:"unit_price"`
	Tags        []string `json:"tags,omitempty"`
	Active      bool     `json:"active"`
}

// CatalogSnapshot is an immutable view of the catalog taken at interpretation
// time. Pricing is always recomputed from the snapshot, so staleness within
// the cache TTL is acceptable.
type CatalogSnapshot struct {
	Products []Product `json:"products"`
	TakenAt  time.Time `json:"taken_at"`
}

// Customer is a persisted customer-book entry.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BusinessProfile carries the authoritative merchant fields merged into every
// confirmed invoice. TaxRate is the only tax rate used anywhere in the
// pipeline, including the recompute fallback when the completion omits tax.
type BusinessProfile struct {
	Name            string  `json:"name"`
	Email           string  `json:"email,omitempty"`
	Phone           string  `json:"phone,omitempty"`
	Address         string  `json:"address,omitempty"`
	LogoURL         string  `json:"logo_url,omitempty"`
	TaxEnabled      bool    `json:"tax_enabled"`
	TaxRate         float64 `json:"tax_rate"`
	PaymentTerms    string  `json:"payment_terms,omitempty"`
	ThankYouMessage string  `json:"thank_you_message,omitempty"`
	Currency        string  `json:"currency"`
}
