package adjudicate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridianhealth/claims-cli/internal/model"
	"github.com/meridianhealth/claims-cli/internal/store"
)

// AssignProducts selects the covering product, policy and limitation terms
// for every line that survived validation. Lines that cannot be covered are
// rejected with the cause that excluded the last candidate; a matched product
// whose policy is not among the currently valid ones is logged and counted,
// never returned as an error.
func (e *Engine) AssignProducts(ctx context.Context, claim *model.Claim, policies []model.Policy) ([]model.RuleError, error) {
	log := zap.L().With(zap.String("claim", claim.Code))

	var err error
	if policies == nil {
		policies, err = e.coveringPolicies(ctx, claim)
		if err != nil {
			return nil, err
		}
	}
	policyIDs := make([]string, 0, len(policies))
	for _, p := range policies {
		policyIDs = append(policyIDs, p.ID)
	}

	insuree, err := e.store.GetInsuree(ctx, claim.InsureeID)
	if err != nil {
		return nil, eris.Wrapf(err, "match: load insuree for claim %s", claim.Code)
	}

	visitType := claim.VisitType
	if visitType == "" {
		visitType = model.VisitType(e.cfg.DefaultVisitType)
	}

	var errs []model.RuleError
	for _, line := range claim.Lines {
		if line.Rejected() {
			continue
		}
		target := line.TargetDate(claim)
		adult := insuree.Adult(target, e.cfg.AdultAge)

		candidates, err := e.store.FindCoverageCandidates(ctx, store.CandidateQuery{
			PolicyIDs:  policyIDs,
			Kind:       line.Kind,
			CatalogID:  line.Catalog().CatalogID(),
			VisitType:  visitType,
			Adult:      adult,
			TargetDate: target,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "match: candidates for line %s", line.ID)
		}

		chosen, failCode := pickCandidate(candidates, line, target)
		if chosen == nil {
			line.Reject(failCode)
			errs = append(errs, lineError(line))
			if err := e.store.UpdateLine(ctx, line); err != nil {
				return nil, eris.Wrapf(err, "match: persist line %s", line.ID)
			}
			continue
		}

		line.ProductID = chosen.ProductID
		line.LimitationType = chosen.LimitationType
		lv := chosen.LimitationValue
		line.LimitationValue = &lv
		line.PriceOrigin = chosen.PriceOrigin
		line.CeilingExclusion = chosen.Exclusion(adult)

		if pol := policyFor(policies, chosen.ProductID, target); pol != nil {
			line.PolicyID = pol.ID
		} else {
			// Best-effort behavior carried from the legacy engine: the line
			// keeps its product but stays unpaid until a policy turns up.
			e.metrics.MatcherAnomaly()
			log.Warn("match: product has no currently valid policy",
				zap.String("line", line.ID),
				zap.String("product", chosen.ProductID))
		}

		if err := e.store.UpdateLine(ctx, line); err != nil {
			return nil, eris.Wrapf(err, "match: persist line %s", line.ID)
		}
	}

	return errs, nil
}

// pickCandidate filters candidates by waiting period and provision maxima,
// then resolves the co-insurance vs fixed-amount contest. The fail code
// reported when nothing survives names what excluded the candidates.
func pickCandidate(candidates []model.CoverageCandidate, line *model.ClaimLine, target time.Time) (*model.CoverageCandidate, model.RejectionCode) {
	var bestC, bestF *model.CoverageCandidate
	waitingFailed, qtyFailed := 0, 0

	for i := range candidates {
		c := &candidates[i]
		if c.PolicyStage == model.StageNew && c.WaitingMonths > 0 {
			if target.Before(c.PolicyEffective.AddDate(0, c.WaitingMonths, 0)) {
				waitingFailed++
				continue
			}
		}
		if c.MaxProvisions != nil && float64(c.ProvisionsUsed)+line.Quantity() > float64(*c.MaxProvisions) {
			qtyFailed++
			continue
		}
		// Candidates arrive richest-first per pool; keep the first of each.
		switch c.LimitationType {
		case model.LimitCoinsurance:
			if bestC == nil {
				bestC = c
			}
		case model.LimitFixed:
			if bestF == nil {
				bestF = c
			}
		}
	}

	switch {
	case bestC == nil && bestF == nil:
		if waitingFailed > 0 {
			return nil, model.RejectionWaitingPeriod
		}
		if qtyFailed > 0 {
			return nil, model.RejectionQtyOverLimit
		}
		return nil, model.RejectionNoProductFound
	case bestC == nil:
		return bestF, 0
	case bestF == nil:
		return bestC, 0
	}

	// Both pools have a candidate: compare patient out-of-pocket cost.
	claimPrice := knownPrice(line)
	fixedLimit := bestF.LimitationValue
	if fixedLimit == 0 || fixedLimit > claimPrice {
		return bestF, 0
	}
	if bestC.LimitationValue < 100 {
		residualFixed := claimPrice - fixedLimit
		residualCo := (1 - bestC.LimitationValue/100) * claimPrice
		if residualFixed < residualCo {
			return bestF, 0
		}
	}
	// Ties and full co-insurance coverage resolve to the co-insurance plan.
	return bestC, 0
}

// knownPrice is the line's currently best-known price: approved, else
// adjusted, else asked.
func knownPrice(line *model.ClaimLine) float64 {
	if line.PriceApproved != nil {
		return *line.PriceApproved
	}
	if line.PriceAdjusted != nil {
		return *line.PriceAdjusted
	}
	return line.PriceAsked
}

// policyFor finds a valid policy carrying the product at the target date.
func policyFor(policies []model.Policy, productID string, at time.Time) *model.Policy {
	for i := range policies {
		if policies[i].ProductID == productID && policies[i].Covers(at) {
			return &policies[i]
		}
	}
	return nil
}
