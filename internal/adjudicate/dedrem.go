package adjudicate

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridianhealth/claims-cli/internal/model"
)

// Outcome is the typed aggregate of an accumulator run over one policy, and,
// merged, over the whole claim. Numeric fields sum; UsedRelative is OR'd.
type Outcome struct {
	DedG  float64
	DedIP float64
	DedOP float64

	RemG  float64
	RemIP float64
	RemOP float64

	RemConsultation    float64
	RemSurgery         float64
	RemDelivery        float64
	RemHospitalization float64
	RemAntenatal       float64

	UsedRelative bool
}

// Merge folds another outcome into this one.
func (o *Outcome) Merge(p Outcome) {
	o.DedG += p.DedG
	o.DedIP += p.DedIP
	o.DedOP += p.DedOP
	o.RemG += p.RemG
	o.RemIP += p.RemIP
	o.RemOP += p.RemOP
	o.RemConsultation += p.RemConsultation
	o.RemSurgery += p.RemSurgery
	o.RemDelivery += p.RemDelivery
	o.RemHospitalization += p.RemHospitalization
	o.RemAntenatal += p.RemAntenatal
	o.UsedRelative = o.UsedRelative || p.UsedRelative
}

// RemTotal is the remunerated sum across all scopes.
func (o *Outcome) RemTotal() float64 {
	return o.RemG + o.RemIP + o.RemOP
}

func (o *Outcome) addDed(scope model.LimitScope, v float64) {
	switch scope {
	case model.ScopeInPatient:
		o.DedIP += v
	case model.ScopeOutPatient:
		o.DedOP += v
	default:
		o.DedG += v
	}
}

func (o *Outcome) addRem(scope model.LimitScope, cat model.ClaimCategory, v float64) {
	switch scope {
	case model.ScopeInPatient:
		o.RemIP += v
	case model.ScopeOutPatient:
		o.RemOP += v
	default:
		o.RemG += v
	}
	switch cat {
	case model.CategoryConsultation:
		o.RemConsultation += v
	case model.CategorySurgery:
		o.RemSurgery += v
	case model.CategoryDelivery:
		o.RemDelivery += v
	case model.CategoryHospitalization:
		o.RemHospitalization += v
	case model.CategoryAntenatal:
		o.RemAntenatal += v
	}
}

// ProcessDedrem turns matched claim lines into monetary outcomes and ledger
// entries. Prior ledger entries for the claim are archived first, so a rerun
// recomputes against the same baseline and is idempotent.
func (e *Engine) ProcessDedrem(ctx context.Context, claim *model.Claim, auditUserID int, isProcess bool) ([]model.RuleError, error) {
	log := zap.L().With(zap.String("claim", claim.Code))

	if err := e.store.ArchiveLedger(ctx, claim.ID); err != nil {
		return nil, eris.Wrapf(err, "dedrem: archive ledger for claim %s", claim.Code)
	}

	claim.Category = DeriveCategory(claim)

	// Distinct (policy, product) pairs over passed, assigned lines.
	pairs := make(map[string]string)
	linesByPolicy := make(map[string][]*model.ClaimLine)
	for _, line := range claim.Lines {
		if line.Rejected() || line.ProductID == "" || line.PolicyID == "" {
			continue
		}
		pairs[line.PolicyID] = line.ProductID
		linesByPolicy[line.PolicyID] = append(linesByPolicy[line.PolicyID], line)
	}

	if len(pairs) == 0 {
		claim.Status = model.ClaimStatusRejected
		claim.RejectionReason = model.RejectionNoProductFound
		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return nil, eris.Wrapf(err, "dedrem: persist rejected claim %s", claim.Code)
		}
		e.metrics.ClaimRejected(int(model.RejectionNoProductFound))
		return []model.RuleError{model.NewRuleError(model.RejectionNoProductFound, claim.Code)}, nil
	}

	policyIDs := make([]string, 0, len(pairs))
	for id := range pairs {
		policyIDs = append(policyIDs, id)
	}
	sort.Strings(policyIDs)

	var agg Outcome
	for _, policyID := range policyIDs {
		outcome, err := e.accumulatePolicy(ctx, claim, policyID, pairs[policyID], linesByPolicy[policyID], auditUserID, isProcess)
		if err != nil {
			return nil, err
		}
		agg.Merge(*outcome)
	}

	if isProcess {
		e.finalizeClaim(claim, &agg, auditUserID)
		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return nil, eris.Wrapf(err, "dedrem: persist claim %s", claim.Code)
		}
		e.metrics.ClaimProcessed(agg.UsedRelative)
	}

	log.Debug("dedrem: complete",
		zap.Int("policies", len(policyIDs)),
		zap.Float64("remunerated", agg.RemTotal()),
		zap.Bool("relative", agg.UsedRelative))
	return nil, nil
}

// accumulatePolicy runs the per-line monetary computation for one policy and
// writes the resulting ledger entry. Line contributions are commutative; the
// iteration order only affects which line absorbs the last of a balance.
func (e *Engine) accumulatePolicy(ctx context.Context, claim *model.Claim, policyID, productID string, lines []*model.ClaimLine, auditUserID int, isProcess bool) (*Outcome, error) {
	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, eris.Wrapf(err, "dedrem: load product %s", productID)
	}

	hospital := claim.HospitalVisit(product.CeilingInterpretation)
	target := claim.DateClaimed
	if claim.DateFrom != nil {
		target = *claim.DateFrom
	}

	acc, err := e.resolveAccount(ctx, product, policyID, claim.InsureeID, hospital, target)
	if err != nil {
		return nil, err
	}

	// Category sub-ceiling balance for this policy; Visit has none.
	var categoryRemaining *float64
	if ceil := product.CategoryCeiling(claim.Category); ceil != nil {
		used, err := e.store.CategoryConsumed(ctx, policyID, claim.Category)
		if err != nil {
			return nil, eris.Wrapf(err, "dedrem: category consumption for policy %s", policyID)
		}
		remaining := clampZero(*ceil - used)
		categoryRemaining = &remaining
	}

	var outcome Outcome
	for _, line := range lines {
		if err := e.valuateLine(ctx, claim, line, &acc, categoryRemaining, hospital, isProcess, &outcome); err != nil {
			return nil, err
		}
	}

	entry := &model.LedgerEntry{
		ID:                 uuid.New().String(),
		ClaimID:            claim.ID,
		PolicyID:           policyID,
		InsureeID:          claim.InsureeID,
		DedG:               outcome.DedG,
		DedIP:              outcome.DedIP,
		DedOP:              outcome.DedOP,
		RemG:               outcome.RemG,
		RemIP:              outcome.RemIP,
		RemOP:              outcome.RemOP,
		RemConsultation:    outcome.RemConsultation,
		RemSurgery:         outcome.RemSurgery,
		RemDelivery:        outcome.RemDelivery,
		RemHospitalization: outcome.RemHospitalization,
		RemAntenatal:       outcome.RemAntenatal,
		Hospital:           hospital,
		AuditUserID:        auditUserID,
		CreatedAt:          time.Now().UTC(),
	}
	if err := e.store.CreateLedgerEntry(ctx, entry); err != nil {
		return nil, eris.Wrapf(err, "dedrem: create ledger entry for policy %s", policyID)
	}

	return &outcome, nil
}

// valuateLine computes one line's adjusted price, consumes the deductible and
// the remaining ceilings, and persists the monetary fields.
func (e *Engine) valuateLine(ctx context.Context, claim *model.Claim, line *model.ClaimLine, acc *account, categoryRemaining *float64, hospital, isProcess bool, outcome *Outcome) error {
	adjusted, preApproved, err := e.adjustedPrice(ctx, claim, line)
	if err != nil {
		return err
	}

	workValue := line.Quantity() * adjusted

	// A fixed-amount limitation caps the covered value outright.
	if line.LimitationType == model.LimitFixed && line.LimitationValue != nil &&
		*line.LimitationValue > 0 && workValue > *line.LimitationValue {
		workValue = *line.LimitationValue
	}

	// Consume the deductible balance.
	var deducted float64
	if acc.hasDeductible && acc.deductible > 0 {
		d := workValue
		if acc.deductible < d {
			d = acc.deductible
		}
		workValue -= d
		acc.deductible -= d
		deducted = d
		outcome.addDed(acc.dedScope, d)
	}

	// Co-insurance keeps only the covered percentage.
	if line.LimitationType == model.LimitCoinsurance && line.LimitationValue != nil {
		workValue *= *line.LimitationValue / 100
	}

	// Category sub-ceiling.
	var exceedCategory float64
	if categoryRemaining != nil {
		if workValue > *categoryRemaining {
			exceedCategory = workValue - *categoryRemaining
			workValue = *categoryRemaining
			*categoryRemaining = 0
		} else {
			*categoryRemaining -= workValue
		}
	}

	// General ceiling, unless the coverage term exempts this band.
	var exceedCeiling float64
	if !line.CeilingExclusion.Exempt(hospital) && acc.hasCeiling {
		if workValue > acc.ceiling {
			exceedCeiling = workValue - acc.ceiling
			workValue = acc.ceiling
			acc.ceiling = 0
		} else {
			acc.ceiling -= workValue
		}
	}

	if !preApproved {
		line.PriceAdjusted = &adjusted
	}
	// Valuation-side amounts are persisted on the line only at the process
	// stage; a submit-time pass keeps balance checks in the ledger alone.
	line.DeductableAmount = 0
	line.ExceedCeilingCategory = 0
	line.ExceedCeilingAmount = 0
	if isProcess {
		line.DeductableAmount = deducted
		line.ExceedCeilingCategory = exceedCategory
		line.ExceedCeilingAmount = exceedCeiling
		valuated := workValue
		line.PriceValuated = &valuated
		if line.PriceOrigin == model.OriginRelative {
			// Final remuneration is deferred to the relative-pricing batch.
			outcome.UsedRelative = true
		} else {
			line.RemuneratedAmount = workValue
		}
	}
	outcome.addRem(acc.ceilScope, claim.Category, workValue)

	if err := e.store.UpdateLine(ctx, line); err != nil {
		return eris.Wrapf(err, "dedrem: persist line %s", line.ID)
	}
	return nil
}

// adjustedPrice resolves the price a line is valuated at, honoring approved
// prices, the claim/pricelist origin, and package-service clamps.
func (e *Engine) adjustedPrice(ctx context.Context, claim *model.Claim, line *model.ClaimLine) (price float64, preApproved bool, err error) {
	if line.PriceApproved != nil {
		return *line.PriceApproved, true, nil
	}

	listPrice, err := e.pricelistPrice(ctx, claim, line)
	if err != nil {
		return 0, false, err
	}

	if line.PriceOrigin == model.OriginClaim {
		asked := line.PriceAsked
		// Sanity clamp for services against the fixed catalog price.
		if line.Kind == model.KindService && line.Service != nil &&
			line.Service.Price > 0 && asked > line.Service.Price {
			asked = line.Service.Price
		}
		return e.packageClamp(ctx, claim, line, asked)
	}

	return e.packageClamp(ctx, claim, line, listPrice)
}

// pricelistPrice is the facility pricelist price at the line's target date,
// falling back to the catalog price when the pricelist row is gone.
func (e *Engine) pricelistPrice(ctx context.Context, claim *model.Claim, line *model.ClaimLine) (float64, error) {
	detail, err := e.store.PricelistDetail(ctx, claim.FacilityID, line.Kind, line.Catalog().CatalogID(), line.TargetDate(claim))
	if err != nil {
		return 0, eris.Wrapf(err, "dedrem: pricelist price for line %s", line.ID)
	}
	if detail == nil {
		return line.Catalog().CatalogPrice(), nil
	}
	return detail.EffectivePrice(), nil
}

// packageClamp zeroes the price of a composite package service whose claimed
// sub-items and sub-services do not exactly match the catalog bundle.
func (e *Engine) packageClamp(ctx context.Context, claim *model.Claim, line *model.ClaimLine, price float64) (float64, bool, error) {
	if line.Kind != model.KindService || line.Service == nil || line.Service.PackType != model.PackageBundle {
		return price, false, nil
	}
	match, err := e.packageMatches(ctx, claim, line)
	if err != nil {
		return 0, false, err
	}
	if !match {
		return 0, false, nil
	}
	return price, false, nil
}

// packageMatches compares the catalog bundle of a package service with the
// claim's other lines: every component must be claimed with exactly the
// declared quantity, and nothing else may ride along.
func (e *Engine) packageMatches(ctx context.Context, claim *model.Claim, pkg *model.ClaimLine) (bool, error) {
	components, err := e.store.PackageComposition(ctx, pkg.Service.ID)
	if err != nil {
		return false, eris.Wrapf(err, "dedrem: package composition for service %s", pkg.Service.ID)
	}

	type key struct {
		kind model.LineKind
		id   string
	}
	declared := make(map[key]float64, len(components))
	for _, c := range components {
		declared[key{c.Kind, c.CatalogID}] += c.Qty
	}

	claimed := make(map[key]float64)
	for _, l := range claim.Lines {
		if l.ID == pkg.ID || l.Rejected() {
			continue
		}
		claimed[key{l.Kind, l.Catalog().CatalogID()}] += l.Quantity()
	}

	if len(claimed) != len(declared) {
		return false, nil
	}
	for k, qty := range declared {
		if claimed[k] != qty {
			return false, nil
		}
	}
	return true, nil
}

// finalizeClaim derives the claim's status and totals from the aggregate.
func (e *Engine) finalizeClaim(claim *model.Claim, agg *Outcome, auditUserID int) {
	total := agg.RemTotal()
	claim.Approved = &total
	if agg.UsedRelative {
		claim.Status = model.ClaimStatusProcessed
	} else {
		claim.Status = model.ClaimStatusValuated
		remunerated := total
		claim.Remunerated = &remunerated
		valuated := total
		claim.Valuated = &valuated
	}

	claim.AuditUserID = auditUserID
	now := time.Now().UTC()
	claim.ProcessStamp = &now

	// A pending selection is moot once the claim is processed.
	if claim.Feedback == model.FeedbackSelected {
		claim.Feedback = model.FeedbackBypassed
	}
	if claim.Review == model.ReviewSelected {
		claim.Review = model.ReviewBypassed
	}
}
