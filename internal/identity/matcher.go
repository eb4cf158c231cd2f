// Package identity decides whether an extracted customer or product refers to
// an existing record or a genuinely new entity, with a confidence score and a
// conservative action policy.
package identity

import (
	"strings"

	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/merchant"
	"github.com/adiwendra/fakturo/internal/textmatch"
)

type EntityKind string

const (
	KindCustomer EntityKind = "customer"
	KindProduct  EntityKind = "product"
)

const (
	// FuzzyThreshold is the similarity above which a name counts as the same
	// entity.
	FuzzyThreshold = 0.8
	// MinFuzzyNameLen guards fuzzy name matching against short, common names.
	MinFuzzyNameLen = 4
)

// MatchResult classifies one extracted entity per request.
type MatchResult struct {
	Kind       EntityKind         `json:"kind"`
	IsNew      bool               `json:"is_new"`
	Confidence float64            `json:"confidence"`
	Action     Action             `json:"action"`
	Customer   *merchant.Customer `json:"customer,omitempty"`
	Product    *merchant.Product  `json:"product,omitempty"`
	Extracted  any                `json:"extracted,omitempty"`
	Reason     string             `json:"reason,omitempty"`
}

type Matcher struct{}

func NewMatcher() *Matcher { return &Matcher{} }

// MatchCustomer resolves an extracted customer against the candidate pool in
// strict precedence: exact email, normalized phone, then fuzzy name (only for
// names long enough to be distinctive). The first hit wins with confidence 1.
func (m *Matcher) MatchCustomer(extracted intake.PartialCustomer, pool []merchant.Customer) MatchResult {
	res := MatchResult{Kind: KindCustomer, Extracted: extracted}

	if email := strings.ToLower(strings.TrimSpace(extracted.Email)); email != "" {
		for i := range pool {
			if strings.ToLower(strings.TrimSpace(pool[i].Email)) == email {
				return existing(res, &pool[i], nil, "exact email match")
			}
		}
	}
	if phone := textmatch.NormalizePhone(extracted.Phone); phone != "" {
		for i := range pool {
			if textmatch.NormalizePhone(pool[i].Phone) == phone {
				return existing(res, &pool[i], nil, "normalized phone match")
			}
		}
	}
	name := textmatch.NormalizeName(extracted.Name)
	if len(name) >= MinFuzzyNameLen {
		for i := range pool {
			if textmatch.Similarity(name, textmatch.NormalizeName(pool[i].Name)) >= FuzzyThreshold {
				return existing(res, &pool[i], nil, "fuzzy name match")
			}
		}
	}

	res.IsNew = true
	res.Confidence = customerConfidence(extracted)
	res.Action = actionFor(KindCustomer, res.Confidence)
	return res
}

// MatchProduct resolves an extracted line item against the active catalog by
// normalized-name similarity.
func (m *Matcher) MatchProduct(item intake.PartialLineItem, snapshot merchant.CatalogSnapshot) MatchResult {
	res := MatchResult{Kind: KindProduct, Extracted: item}

	name := textmatch.NormalizeName(item.ProductName)
	bestScore := 0.0
	var best *merchant.Product
	for i := range snapshot.Products {
		p := &snapshot.Products[i]
		if !p.Active {
			continue
		}
		if score := textmatch.Similarity(name, textmatch.NormalizeName(p.Name)); score > bestScore {
			bestScore = score
			best = p
		}
	}
	if best != nil && bestScore >= FuzzyThreshold {
		return existing(res, nil, best, "catalog name similarity")
	}

	res.IsNew = true
	res.Confidence = productConfidence(item)
	res.Action = actionFor(KindProduct, res.Confidence)
	return res
}

func existing(res MatchResult, c *merchant.Customer, p *merchant.Product, reason string) MatchResult {
	res.IsNew = false
	res.Confidence = 1.0
	res.Action = ActionExisting
	res.Customer = c
	res.Product = p
	res.Reason = reason
	return res
}
