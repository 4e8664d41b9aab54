// Package adjudicate implements the claim adjudication core: the validation
// pipeline, the product/policy matcher, the deduction-and-remuneration
// accumulator, and the claim status transitions built on them.
package adjudicate

import (
	"github.com/meridianhealth/claims-cli/internal/model"
)

// categoryPriority orders claim categories by significance. A claim carrying
// services of several categories is classified by the highest-priority one.
var categoryPriority = []model.ClaimCategory{
	model.CategorySurgery,
	model.CategoryDelivery,
	model.CategoryAntenatal,
	model.CategoryHospitalization,
	model.CategoryConsultation,
	model.CategoryOther,
}

// DeriveCategory classifies a claim from the distinct categories of its
// service lines. Claims without service lines default to Visit.
func DeriveCategory(claim *model.Claim) model.ClaimCategory {
	present := make(map[model.ClaimCategory]bool)
	for _, l := range claim.ServiceLines() {
		if l.Service != nil && l.Service.Category != "" {
			present[l.Service.Category] = true
		}
	}
	for _, cat := range categoryPriority {
		if present[cat] {
			return cat
		}
	}
	return model.CategoryVisit
}
