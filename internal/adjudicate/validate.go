package adjudicate

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridianhealth/claims-cli/internal/model"
)

// lineCtx carries the per-claim context the line checks share.
type lineCtx struct {
	claim    *model.Claim
	insuree  *model.Insuree
	adultAge int
}

// lineCheck is one validation rule. A zero code means the line passed the
// check; a non-zero code rejects the line and stops its remaining checks.
type lineCheck struct {
	name string
	fn   func(ctx context.Context, e *Engine, lc *lineCtx, line *model.ClaimLine) (model.RejectionCode, error)
}

// lineChecks run in this exact order; each line short-circuits on its first
// failure.
var lineChecks = []lineCheck{
	{"validity", checkValidity},
	{"pricelist", checkPricelist},
	{"care_type", checkCareType},
	{"patient_category", checkPatientCategory},
	{"frequency", checkFrequency},
}

// Validate runs the claim validation pipeline. Business rejections come back
// as RuleErrors and are persisted on the claim and its lines; the error
// return is reserved for infrastructure faults.
func (e *Engine) Validate(ctx context.Context, claim *model.Claim, enforceCeiling bool, policies []model.Policy) ([]model.RuleError, error) {
	log := zap.L().With(zap.String("claim", claim.Code))

	// Whole-claim gate: target date.
	if badTargetDate(claim) {
		return e.rejectClaim(ctx, claim, model.RejectionTargetDate, "claim period dates missing or claimed before start")
	}

	// Whole-claim gate: insuree and coverage.
	insuree, err := e.store.GetInsuree(ctx, claim.InsureeID)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: load insuree for claim %s", claim.Code)
	}
	if insuree.Closed() {
		return e.rejectClaim(ctx, claim, model.RejectionFamily, "insuree record is closed")
	}
	if policies == nil {
		policies, err = e.coveringPolicies(ctx, claim)
		if err != nil {
			return nil, err
		}
	}
	if len(policies) == 0 {
		return e.rejectClaim(ctx, claim, model.RejectionNoCoverage, "no policy covers the claim period")
	}

	lc := &lineCtx{claim: claim, insuree: insuree, adultAge: e.cfg.AdultAge}

	var errs []model.RuleError
	for _, line := range claim.Lines {
		if line.Rejected() {
			errs = append(errs, lineError(line))
			continue
		}
		for _, check := range lineChecks {
			code, checkErr := check.fn(ctx, e, lc, line)
			if checkErr != nil {
				return nil, eris.Wrapf(checkErr, "validate: %s check on claim %s", check.name, claim.Code)
			}
			if code != 0 {
				line.Reject(code)
				errs = append(errs, lineError(line))
				break
			}
		}
	}

	if enforceCeiling {
		overrun, overrunErr := e.categoryOverrun(ctx, claim, policies)
		if overrunErr != nil {
			return nil, overrunErr
		}
		if overrun != 0 {
			// Category maxima override every other line outcome.
			errs = errs[:0]
			for _, line := range claim.Lines {
				line.Status = model.LineRejected
				line.RejectionReason = overrun
				errs = append(errs, lineError(line))
			}
		}
	}

	passed := 0
	for _, line := range claim.Lines {
		if !line.Rejected() {
			line.Status = model.LinePassed
			passed++
		}
		if err := e.store.UpdateLine(ctx, line); err != nil {
			return nil, eris.Wrapf(err, "validate: persist line %s", line.ID)
		}
	}

	if passed == 0 {
		claim.Status = model.ClaimStatusRejected
		claim.RejectionReason = model.RejectionInvalidItemOrService
		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return nil, eris.Wrapf(err, "validate: persist rejected claim %s", claim.Code)
		}
		e.metrics.ClaimRejected(int(model.RejectionInvalidItemOrService))
		log.Info("validate: no line passed, claim rejected",
			zap.Int("lines", len(claim.Lines)))
		errs = append(errs, model.NewRuleError(model.RejectionInvalidItemOrService, claim.Code))
		return errs, nil
	}

	log.Debug("validate: complete",
		zap.Int("passed", passed),
		zap.Int("rejected", len(claim.Lines)-passed))
	return errs, nil
}

// coveringPolicies loads the policies valid over the claim's date window.
func (e *Engine) coveringPolicies(ctx context.Context, claim *model.Claim) ([]model.Policy, error) {
	from := claim.DateClaimed
	if claim.DateFrom != nil {
		from = *claim.DateFrom
	}
	to := from
	if claim.DateTo != nil {
		to = *claim.DateTo
	}
	policies, err := e.store.PoliciesCovering(ctx, claim.InsureeID, from, to)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: load policies for claim %s", claim.Code)
	}
	return policies, nil
}

func badTargetDate(claim *model.Claim) bool {
	if claim.DateFrom == nil && claim.DateTo == nil {
		return true
	}
	if claim.DateFrom != nil && claim.DateClaimed.Before(truncateDay(*claim.DateFrom)) {
		return true
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// rejectClaim stamps a whole-claim rejection on the claim and every line.
func (e *Engine) rejectClaim(ctx context.Context, claim *model.Claim, code model.RejectionCode, detail string) ([]model.RuleError, error) {
	claim.Status = model.ClaimStatusRejected
	claim.RejectionReason = code
	for _, line := range claim.Lines {
		line.Status = model.LineRejected
		line.RejectionReason = code
		if err := e.store.UpdateLine(ctx, line); err != nil {
			return nil, eris.Wrapf(err, "validate: persist line %s", line.ID)
		}
	}
	if err := e.store.UpdateClaim(ctx, claim); err != nil {
		return nil, eris.Wrapf(err, "validate: persist rejected claim %s", claim.Code)
	}
	e.metrics.ClaimRejected(int(code))
	return []model.RuleError{model.NewRuleError(code, detail)}, nil
}

func lineError(line *model.ClaimLine) model.RuleError {
	detail := string(line.Kind)
	if cat := line.Catalog(); cat != nil {
		detail = fmt.Sprintf("%s %s", line.Kind, cat.CatalogCode())
	}
	return model.NewRuleError(line.RejectionReason, detail)
}

// checkValidity rejects lines whose catalog entity was retired while the
// line itself is still open.
func checkValidity(_ context.Context, _ *Engine, _ *lineCtx, line *model.ClaimLine) (model.RejectionCode, error) {
	cat := line.Catalog()
	if cat == nil {
		return model.RejectionInvalidItemOrService, nil
	}
	if cat.Retired() != nil && line.ValidityTo == nil {
		return model.RejectionInvalidItemOrService, nil
	}
	return 0, nil
}

// checkPricelist requires the catalog entity in the claiming facility's
// active pricelist at the line's target date.
func checkPricelist(ctx context.Context, e *Engine, lc *lineCtx, line *model.ClaimLine) (model.RejectionCode, error) {
	detail, err := e.store.PricelistDetail(ctx, lc.claim.FacilityID, line.Kind, line.Catalog().CatalogID(), line.TargetDate(lc.claim))
	if err != nil {
		return 0, err
	}
	if detail == nil {
		return model.RejectionNotInPriceList, nil
	}
	return 0, nil
}

// checkCareType matches the facility care type against the line's own care
// type and against whether the claim implies hospitalization.
func checkCareType(_ context.Context, _ *Engine, lc *lineCtx, line *model.ClaimLine) (model.RejectionCode, error) {
	hospital := !lc.claim.SingleDay()
	if !careTypeCompatible(lc.claim.CareType, line.Catalog().LineCareType(), hospital) {
		return model.RejectionCareType, nil
	}
	return 0, nil
}

func careTypeCompatible(facility, line model.CareType, hospital bool) bool {
	switch facility {
	case model.CareOutpatient:
		return !hospital && line != model.CareInpatient
	case model.CareInpatient:
		return hospital && line != model.CareOutpatient
	default:
		if line == model.CareInpatient && !hospital {
			return false
		}
		return true
	}
}

// checkPatientCategory verifies the catalog entity's demographic mask fully
// contains the insuree's bits. A zero entity mask is the wildcard.
func checkPatientCategory(_ context.Context, _ *Engine, lc *lineCtx, line *model.ClaimLine) (model.RejectionCode, error) {
	required := line.Catalog().PatientCategoryMask()
	if required == 0 {
		return 0, nil
	}
	mask := lc.insuree.Mask(line.TargetDate(lc.claim), lc.adultAge)
	if required&mask != mask {
		return model.RejectionCategoryLimitation, nil
	}
	return 0, nil
}

// checkFrequency rejects a line when the insuree already has a processed
// passed line for the same entity within the entity's frequency window.
func checkFrequency(ctx context.Context, e *Engine, lc *lineCtx, line *model.ClaimLine) (model.RejectionCode, error) {
	days := line.Catalog().FrequencyDays()
	if days <= 0 {
		return 0, nil
	}
	conflict, err := e.store.FrequencyConflict(ctx, lc.claim.InsureeID, line.Kind, line.Catalog().CatalogID(), line.TargetDate(lc.claim), days, lc.claim.ID)
	if err != nil {
		return 0, err
	}
	if conflict {
		return model.RejectionFrequencyFailure, nil
	}
	return 0, nil
}

// categoryOverrun checks the claim's category against each covering
// product's visit-count maximum. The overrun code is returned only when every
// covering product is exhausted; as long as one product still admits the
// visit the claim can be matched against it.
func (e *Engine) categoryOverrun(ctx context.Context, claim *model.Claim, policies []model.Policy) (model.RejectionCode, error) {
	cat := DeriveCategory(claim)
	var code model.RejectionCode
	for _, pol := range policies {
		product, err := e.store.GetProduct(ctx, pol.ProductID)
		if err != nil {
			return 0, eris.Wrapf(err, "validate: load product %s", pol.ProductID)
		}
		max, overrunCode := product.CategoryCountMax(cat)
		if max == nil {
			// Unlimited under this product.
			return 0, nil
		}
		count, err := e.store.ClaimCategoryCount(ctx, claim.InsureeID, pol.ID, cat, pol.Effective, pol.Expiry, claim.ID)
		if err != nil {
			return 0, eris.Wrapf(err, "validate: count %s claims on policy %s", cat, pol.ID)
		}
		if count < *max {
			return 0, nil
		}
		code = overrunCode
	}
	return code, nil
}
