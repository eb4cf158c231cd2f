package intake

import (
	"fmt"
	"strings"

	"github.com/adiwendra/fakturo/internal/merchant"
)

// BuildPrompt assembles the bounded context for the completion collaborator:
// the raw message, the serialized catalog and the exact output schema.
func BuildPrompt(message string, snapshot merchant.CatalogSnapshot, profile merchant.BusinessProfile) string {
	var b strings.Builder
	b.WriteString("Return valid JSON only. No markdown fences, no commentary.\n\n")
	b.WriteString(`Convert the order message below into an invoice. Use the catalog to resolve
product names and unit prices. If the message states a price, the stated price
wins. If a product is not in the catalog and the message states no price, use
unit_price 0. Quantities default to 1. Do not invent items the message does
not mention.

Your entire response must be a single JSON object with this schema:

{
  "invoice_number": "string, may be empty",
  "date": "YYYY-MM-DD, invoice date, may be empty",
  "due_date": "YYYY-MM-DD, may be empty",
  "customer": {"name": "string", "email": "string", "phone": "string", "address": "string"},
  "items": [{"product_name": "string", "quantity": number, "unit_price": number, "line_total": number}],
  "subtotal": number,
  "tax": number,
  "total": number,
  "terms": "string, may be empty",
  "thank_you_message": "string, may be empty"
}

All money values are plain non-negative numbers in ` + currencyOr(profile) + `
without separators ("16.500.000" in the message means 16500000).
Do not extract discounts or payment schedules into the totals; report the
items at full price and leave discount handling to the caller.
`)
	b.WriteString("\nMERCHANT\n")
	fmt.Fprintf(&b, "name: %s\n", profile.Name)
	if profile.TaxEnabled {
		fmt.Fprintf(&b, "tax_rate_percent: %g\n", profile.TaxRate)
	}
	b.WriteString("\nCATALOG\n")
	b.WriteString(SerializeCatalog(snapshot))
	b.WriteString("\nORDER MESSAGE\n")
	b.WriteString(message)
	return b.String()
}

// SerializeCatalog renders one line per active product: name, sku, price and
// tags. The serialized form also drives the completion token budget.
func SerializeCatalog(snapshot merchant.CatalogSnapshot) string {
	var b strings.Builder
	for _, p := range snapshot.Products {
		if !p.Active {
			continue
		}
		fmt.Fprintf(&b, "- %s | sku=%s | price=%.0f", p.Name, p.SKU, p.UnitPrice)
		if len(p.Tags) > 0 {
			fmt.Fprintf(&b, " | tags=%s", strings.Join(p.Tags, ","))
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "(catalog is empty)\n"
	}
	return b.String()
}

func currencyOr(profile merchant.BusinessProfile) string {
	if strings.TrimSpace(profile.Currency) != "" {
		return profile.Currency
	}
	return "IDR"
}
