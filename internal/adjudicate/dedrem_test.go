package adjudicate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhealth/claims-cli/internal/model"
	"github.com/meridianhealth/claims-cli/internal/store"
)

func submitAndProcess(t *testing.T, e *Engine, code string) []model.RuleError {
	t.Helper()
	ctx := context.Background()
	errs, err := e.Submit(ctx, code)
	require.NoError(t, err)
	require.Empty(t, errs)
	errs, err = e.Process(ctx, code, 1)
	require.NoError(t, err)
	return errs
}

// A per-treatment deductible comes off the top of every claim; the ceiling
// then caps what is left.
func TestDedrem_DeductibleThenCeiling(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Products[0].DedTreatment = model.Limit{G: ptr(10.0)}
	fx.Products[0].CeilTreatment = model.Limit{G: ptr(50.0)}
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 100))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	line := claim.Lines[0]
	assert.Equal(t, 10.0, line.DeductableAmount)
	assert.Equal(t, 40.0, line.ExceedCeilingAmount) // 100-10=90, capped at 50
	assert.Equal(t, 50.0, line.RemuneratedAmount)

	ded, err := st.DeductibleConsumed(ctx, "pol-1", "", store.ScopePolicy, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 10.0, ded)

	rem, err := st.CeilingConsumed(ctx, "pol-1", "", store.ScopePolicy, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 50.0, rem)
}

// An insuree-level ceiling accumulates across the insuree's claims.
func TestDedrem_InsureeCeilingAccumulates(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Products[0].CeilInsuree = model.Limit{G: ptr(150.0)}
	fx.Claims = []model.Claim{
		testClaim("CLM001", serviceLine("l-1", 1, 100)),
		testClaim("CLM002", serviceLine("l-2", 1, 100)),
	}
	fx.Claims[1].ID = "clm-CLM002"
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")
	submitAndProcess(t, e, "CLM002")

	first, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 100.0, first.Lines[0].RemuneratedAmount)

	second, err := st.GetClaim(ctx, "CLM002")
	require.NoError(t, err)
	assert.Equal(t, 50.0, second.Lines[0].RemuneratedAmount)
	assert.Equal(t, 50.0, second.Lines[0].ExceedCeilingAmount)
}

// General terms win over the IP/OP split; with only IP/OP configured, the
// out-patient amount applies to a single-day claim.
func TestDedrem_OutPatientScope(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Products[0].CeilTreatment = model.Limit{IP: ptr(500.0), OP: ptr(30.0)}
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 100))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 30.0, claim.Lines[0].RemuneratedAmount)

	rem, err := st.CeilingConsumed(ctx, "pol-1", "", store.ScopePolicy, model.ScopeOutPatient)
	require.NoError(t, err)
	assert.Equal(t, 30.0, rem)
}

// A multi-day claim under the in-patient interpretation draws from the IP
// pool.
func TestDedrem_InPatientScope(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Products[0].CeilTreatment = model.Limit{IP: ptr(60.0), OP: ptr(500.0)}
	c := testClaim("CLM001", serviceLine("l-1", 1, 100))
	c.DateTo = ptr(date(2026, 3, 12))
	fx.Claims = []model.Claim{c}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 60.0, claim.Lines[0].RemuneratedAmount)

	rem, err := st.CeilingConsumed(ctx, "pol-1", "", store.ScopePolicy, model.ScopeInPatient)
	require.NoError(t, err)
	assert.Equal(t, 60.0, rem)
}

// A policy-level ceiling grows per extra family member past the threshold,
// up to the absolute cap.
func TestDedrem_PolicyCeilingMemberScaling(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Products[0].CeilPolicy = model.Limit{G: ptr(100.0)}
	fx.Products[0].MemberThreshold = 1
	fx.Products[0].ExtraMemberCeil = 50
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 2, 100))}
	seedAll(t, st, fx)

	// Two family members, threshold one: ceiling 100 + 1*50 = 150.
	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 150.0, claim.Lines[0].RemuneratedAmount)
	assert.Equal(t, 50.0, claim.Lines[0].ExceedCeilingAmount)
}

func TestDedrem_PolicyCeilingScalingCap(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Products[0].CeilPolicy = model.Limit{G: ptr(100.0)}
	fx.Products[0].MemberThreshold = 1
	fx.Products[0].ExtraMemberCeil = 50
	fx.Products[0].MaxCeilPolicy = ptr(120.0)
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 2, 100))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 120.0, claim.Lines[0].RemuneratedAmount)
}

// Co-insurance keeps the covered percentage after the deductible.
func TestDedrem_Coinsurance(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.CoverageTerms[1].LimitAdultO = 80
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 100))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 80.0, claim.Lines[0].RemuneratedAmount)
}

// A fixed limitation caps the covered value before anything else.
func TestDedrem_FixedLimitation(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.CoverageTerms[1].LimitationType = model.LimitFixed
	fx.CoverageTerms[1].LimitAdultO = 70
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 100))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 70.0, claim.Lines[0].RemuneratedAmount)
}

// A coverage term excluded from the general ceiling pays out in full.
func TestDedrem_CeilingExclusion(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Products[0].CeilTreatment = model.Limit{G: ptr(10.0)}
	fx.CoverageTerms[1].ExclusionAdult = model.ExclusionBoth
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 100))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 100.0, claim.Lines[0].RemuneratedAmount)
	assert.Equal(t, 0.0, claim.Lines[0].ExceedCeilingAmount)
}

// Hospital-only exclusion does not apply to an out-patient visit.
func TestDedrem_HospitalExclusionOutpatient(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Products[0].CeilTreatment = model.Limit{G: ptr(10.0)}
	fx.CoverageTerms[1].ExclusionAdult = model.ExclusionHospital
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 100))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 10.0, claim.Lines[0].RemuneratedAmount)
}

// A claim-origin line is priced at what the facility asked, clamped to the
// catalog price for services.
func TestDedrem_ClaimPriceOrigin(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.CoverageTerms[1].PriceOrigin = model.OriginClaim
	fx.Services[0].Price = 90 // catalog clamp
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 120))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	require.NotNil(t, claim.Lines[0].PriceAdjusted)
	assert.Equal(t, 90.0, *claim.Lines[0].PriceAdjusted)
	assert.Equal(t, 90.0, claim.Lines[0].RemuneratedAmount)
}

// A relative-origin line defers final remuneration: the claim stays
// PROCESSED and the line is valuated but not remunerated.
func TestDedrem_RelativePricingDefersValuation(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.CoverageTerms[1].PriceOrigin = model.OriginRelative
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 100))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusProcessed, claim.Status)
	assert.Nil(t, claim.Remunerated)
	require.NotNil(t, claim.Lines[0].PriceValuated)
	assert.Equal(t, 100.0, *claim.Lines[0].PriceValuated)
	assert.Equal(t, 0.0, claim.Lines[0].RemuneratedAmount)
}

// An approved price short-circuits pricing and is not re-adjusted.
func TestDedrem_ApprovedPriceWins(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	line := serviceLine("l-1", 1, 100)
	line.PriceApproved = ptr(75.0)
	fx.Claims = []model.Claim{testClaim("CLM001", line)}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Nil(t, claim.Lines[0].PriceAdjusted)
	assert.Equal(t, 75.0, claim.Lines[0].RemuneratedAmount)
}

// Reprocessing archives the first run's ledger entries instead of double
// counting them.
func TestDedrem_RerunIsIdempotent(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 100))}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	_, err = e.ProcessDedrem(ctx, claim, 1, true)
	require.NoError(t, err)

	rem, err := st.CeilingConsumed(ctx, "pol-1", "", store.ScopePolicy, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rem)
}

// A bundle-type package service is paid only when the claimed components
// exactly match the declared composition.
func TestDedrem_PackageMatch(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Services[0].PackType = model.PackageBundle
	fx.Packages = []store.PackageDef{{
		ServiceID:  "svc-1",
		Components: []model.ComponentQty{{Kind: model.KindItem, CatalogID: "item-1", Qty: 2}},
	}}
	fx.Claims = []model.Claim{testClaim("CLM001",
		serviceLine("l-1", 1, 100),
		itemLine("l-2", 2, 100),
	)}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 100.0, claim.Lines[0].RemuneratedAmount)
}

func TestDedrem_PackageMismatchZeroesPrice(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Services[0].PackType = model.PackageBundle
	fx.Packages = []store.PackageDef{{
		ServiceID:  "svc-1",
		Components: []model.ComponentQty{{Kind: model.KindItem, CatalogID: "item-1", Qty: 2}},
	}}
	fx.Claims = []model.Claim{testClaim("CLM001",
		serviceLine("l-1", 1, 100),
		itemLine("l-2", 5, 100), // wrong quantity
	)}
	seedAll(t, st, fx)

	submitAndProcess(t, e, "CLM001")

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, 0.0, claim.Lines[0].RemuneratedAmount)
	// The item itself is still paid.
	assert.Equal(t, 500.0, claim.Lines[1].RemuneratedAmount)
}

func TestOutcome_Merge(t *testing.T) {
	a := Outcome{DedG: 10, RemG: 90, RemConsultation: 90}
	b := Outcome{DedIP: 5, RemIP: 45, RemSurgery: 45, UsedRelative: true}
	a.Merge(b)

	assert.Equal(t, 10.0, a.DedG)
	assert.Equal(t, 5.0, a.DedIP)
	assert.Equal(t, 90.0, a.RemG)
	assert.Equal(t, 45.0, a.RemIP)
	assert.Equal(t, 90.0, a.RemConsultation)
	assert.Equal(t, 45.0, a.RemSurgery)
	assert.True(t, a.UsedRelative)
	assert.Equal(t, 135.0, a.RemTotal())
}

func TestDeriveCategory(t *testing.T) {
	svc := func(cat model.ClaimCategory) *model.ClaimLine {
		return &model.ClaimLine{Kind: model.KindService, Service: &model.Service{Category: cat}}
	}

	tests := []struct {
		name  string
		lines []*model.ClaimLine
		want  model.ClaimCategory
	}{
		{"no services", []*model.ClaimLine{{Kind: model.KindItem, Item: &model.Item{}}}, model.CategoryVisit},
		{"single consultation", []*model.ClaimLine{svc(model.CategoryConsultation)}, model.CategoryConsultation},
		{"surgery outranks consultation", []*model.ClaimLine{svc(model.CategoryConsultation), svc(model.CategorySurgery)}, model.CategorySurgery},
		{"delivery outranks hospitalization", []*model.ClaimLine{svc(model.CategoryHospitalization), svc(model.CategoryDelivery)}, model.CategoryDelivery},
		{"uncategorized service", []*model.ClaimLine{svc("")}, model.CategoryVisit},
		{"other is last resort", []*model.ClaimLine{svc(model.CategoryOther), svc(model.CategoryConsultation)}, model.CategoryConsultation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &model.Claim{Lines: tt.lines}
			assert.Equal(t, tt.want, DeriveCategory(c))
		})
	}
}

// The submit-time pass checks balances through the ledger only; the
// valuation-side line amounts appear once the claim is processed.
func TestDedrem_SubmitLeavesValuationAmountsUnset(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	fx := baseFixtures()
	fx.Products[0].DedTreatment = model.Limit{G: ptr(10.0)}
	fx.Products[0].CeilTreatment = model.Limit{G: ptr(50.0)}
	fx.Claims = []model.Claim{testClaim("CLM001", serviceLine("l-1", 1, 100))}
	seedAll(t, st, fx)

	errs, err := e.Submit(ctx, "CLM001")
	require.NoError(t, err)
	require.Empty(t, errs)

	claim, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	line := claim.Lines[0]
	assert.Zero(t, line.DeductableAmount)
	assert.Zero(t, line.ExceedCeilingAmount)
	assert.Zero(t, line.ExceedCeilingCategory)
	assert.Nil(t, line.PriceValuated)
	assert.Zero(t, line.RemuneratedAmount)

	errs, err = e.Process(ctx, "CLM001", 1)
	require.NoError(t, err)
	require.Empty(t, errs)

	claim, err = st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	line = claim.Lines[0]
	assert.Equal(t, 10.0, line.DeductableAmount)
	assert.Equal(t, 40.0, line.ExceedCeilingAmount)
	assert.Equal(t, 50.0, line.RemuneratedAmount)
}
