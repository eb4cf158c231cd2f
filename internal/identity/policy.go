package identity

import (
	"strings"

	"github.com/adiwendra/fakturo/internal/intake"
)

type Action string

const (
	ActionExisting     Action = "existing"
	ActionAutoAdd      Action = "auto_add"
	ActionSmartConfirm Action = "smart_confirm"
	ActionManualReview Action = "manual_review"
	ActionError        Action = "error"
)

type policyRule struct {
	minConfidence float64
	action        Action
}

// newEntityPolicy maps entity kind to the action taken for a new entity at a
// given confidence. The product row is a hard override: product names arrive
// verbatim from user input and auto-adding them corrupted live catalogs, so
// products are never created without merchant confirmation.
var newEntityPolicy = map[EntityKind][]policyRule{
	KindCustomer: {
		{minConfidence: 0.8, action: ActionAutoAdd},
		{minConfidence: 0.5, action: ActionSmartConfirm},
		{minConfidence: 0, action: ActionManualReview},
	},
	KindProduct: {
		{minConfidence: 0, action: ActionManualReview},
	},
}

func actionFor(kind EntityKind, confidence float64) Action {
	for _, rule := range newEntityPolicy[kind] {
		if confidence >= rule.minConfidence {
			return rule.action
		}
	}
	return ActionManualReview
}

// customerConfidence scores a new customer from data completeness: a base
// score plus additive bonuses for each field that suggests a real contact.
func customerConfidence(c intake.PartialCustomer) float64 {
	score := 0.5
	if strings.Contains(c.Email, "@") && strings.Contains(c.Email, ".") {
		score += 0.2
	}
	if l := len(onlyDigits(c.Phone)); l >= 8 && l <= 15 {
		score += 0.15
	}
	if len(strings.TrimSpace(c.Name)) > 2 {
		score += 0.1
	}
	if len(strings.TrimSpace(c.Address)) > 10 {
		score += 0.05
	}
	return clamp01(score)
}

var productKeywords = []string{
	"pro", "max", "plus", "mini", "ultra",
	"phone", "laptop", "tablet", "watch", "earbuds", "charger", "case",
	"kaos", "tas", "sepatu", "baju", "celana",
}

// productConfidence mirrors customerConfidence for products. The score still
// feeds reporting even though the action policy pins products to manual
// review.
func productConfidence(item intake.PartialLineItem) float64 {
	score := 0.5
	name := strings.ToLower(strings.TrimSpace(item.ProductName))
	if len(name) > 2 {
		score += 0.2
	}
	if item.UnitPrice > 0 {
		score += 0.15
	}
	if len(strings.Fields(name)) >= 2 {
		score += 0.1
	}
	for _, kw := range productKeywords {
		if strings.Contains(name, kw) {
			score += 0.05
			break
		}
	}
	return clamp01(score)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
