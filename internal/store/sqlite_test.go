package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhealth/claims-cli/internal/model"
)

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

// seedBasicFixtures loads one family with two insurees, a product with a
// policy, a small catalog with coverage terms, a facility pricelist and one
// entered claim.
func seedBasicFixtures(t *testing.T, st *SQLiteStore) {
	t.Helper()

	fx := Fixtures{
		Insurees: []model.Insuree{
			{ID: "ins-1", CHFID: "CHF001", FamilyID: "fam-1", Gender: model.GenderMale, BirthDate: date(1980, 5, 20)},
			{ID: "ins-2", CHFID: "CHF002", FamilyID: "fam-1", Gender: model.GenderFemale, BirthDate: date(2015, 3, 2)},
		},
		Products: []model.Product{
			{
				ID:   "prod-1",
				Code: "BASIC",
				Name: "Basic Cover",
				DedTreatment: model.Limit{G: ptr(10.0)},
				CeilInsuree:  model.Limit{G: ptr(5000.0)},
				CeilingInterpretation: model.CeilingInPatient,
			},
		},
		Policies: []model.Policy{
			{ID: "pol-1", ProductID: "prod-1", FamilyID: "fam-1", Stage: model.StageNew,
				Effective: date(2026, 1, 1), Expiry: date(2026, 12, 31)},
		},
		Items: []model.Item{
			{ID: "item-1", Code: "PARA", Name: "Paracetamol", Price: 2.5, CareType: model.CareBoth},
		},
		Services: []model.Service{
			{ID: "svc-1", Code: "CONS", Name: "Consultation", Price: 40, CareType: model.CareBoth,
				Category: model.CategoryConsultation},
		},
		CoverageTerms: []model.CoverageTerm{
			{ID: "ct-1", ProductID: "prod-1", Kind: model.KindItem, CatalogID: "item-1",
				LimitationType: model.LimitCoinsurance,
				LimitAdultO:    100, LimitAdultE: 100, LimitAdultR: 100,
				LimitChildO: 80, LimitChildE: 80, LimitChildR: 80,
				PriceOrigin:    model.OriginPricelist,
				ExclusionAdult: model.ExclusionNone, ExclusionChild: model.ExclusionNone},
			{ID: "ct-2", ProductID: "prod-1", Kind: model.KindService, CatalogID: "svc-1",
				LimitationType: model.LimitCoinsurance,
				LimitAdultO:    90, LimitAdultE: 90, LimitAdultR: 90,
				LimitChildO: 90, LimitChildE: 90, LimitChildR: 90,
				PriceOrigin:    model.OriginPricelist,
				ExclusionAdult: model.ExclusionNone, ExclusionChild: model.ExclusionNone},
		},
		Pricelists: []model.PricelistDetail{
			{ID: "pl-1", FacilityID: "fac-1", Kind: model.KindItem, CatalogID: "item-1",
				Price: 2.0, ValidFrom: date(2026, 1, 1)},
			{ID: "pl-2", FacilityID: "fac-1", Kind: model.KindService, CatalogID: "svc-1",
				Price: 35.0, Override: ptr(30.0), ValidFrom: date(2026, 1, 1)},
		},
		Claims: []model.Claim{
			{
				ID: "clm-1", Code: "CLM001", InsureeID: "ins-1", FacilityID: "fac-1",
				Level: model.LevelHealthCenter, CareType: model.CareBoth,
				Status: model.ClaimStatusEntered, Feedback: model.FeedbackIdle, Review: model.ReviewIdle,
				DateFrom: ptr(date(2026, 3, 10)), DateTo: ptr(date(2026, 3, 10)),
				DateClaimed: date(2026, 3, 12), Claimed: 45,
				Lines: []*model.ClaimLine{
					{ID: "line-1", Kind: model.KindItem, QtyProvided: 2, PriceAsked: 5,
						Status: model.LinePassed,
						Item:   &model.Item{ID: "item-1"}},
					{ID: "line-2", Kind: model.KindService, QtyProvided: 1, PriceAsked: 40,
						Status:  model.LinePassed,
						Service: &model.Service{ID: "svc-1"}},
				},
			},
		},
	}
	require.NoError(t, st.Seed(context.Background(), fx))
}

func TestSQLite_GetClaim_Roundtrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	c, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)

	assert.Equal(t, "clm-1", c.ID)
	assert.Equal(t, "ins-1", c.InsureeID)
	assert.Equal(t, model.ClaimStatusEntered, c.Status)
	assert.Equal(t, model.LevelHealthCenter, c.Level)
	require.Len(t, c.Lines, 2)

	// Catalog entries come back joined onto the lines.
	item := c.Lines[0]
	assert.Equal(t, model.KindItem, item.Kind)
	require.NotNil(t, item.Item)
	assert.Equal(t, "PARA", item.Item.Code)
	assert.Equal(t, 2.5, item.Item.Price)

	svc := c.Lines[1]
	require.NotNil(t, svc.Service)
	assert.Equal(t, model.CategoryConsultation, svc.Service.Category)
}

func TestSQLite_GetClaim_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetClaim(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get claim")
}

func TestSQLite_ListClaims_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	claims, err := st.ListClaims(ctx, ClaimFilter{Status: model.ClaimStatusEntered})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "CLM001", claims[0].Code)

	claims, err = st.ListClaims(ctx, ClaimFilter{Status: model.ClaimStatusValuated})
	require.NoError(t, err)
	assert.Empty(t, claims)

	claims, err = st.ListClaims(ctx, ClaimFilter{FacilityID: "fac-other"})
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestSQLite_UpdateClaim(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	c, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)

	c.Status = model.ClaimStatusChecked
	c.Category = model.CategoryConsultation
	c.Approved = ptr(38.0)
	require.NoError(t, st.UpdateClaim(ctx, c))

	got, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusChecked, got.Status)
	assert.Equal(t, model.CategoryConsultation, got.Category)
	require.NotNil(t, got.Approved)
	assert.Equal(t, 38.0, *got.Approved)
}

func TestSQLite_UpdateClaim_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)

	err := st.UpdateClaim(context.Background(), &model.Claim{ID: "missing", Code: "MISSING"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_UpdateLine(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	c, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)

	line := c.Lines[0]
	line.Status = model.LineRejected
	line.RejectionReason = model.RejectionNotInPriceList
	require.NoError(t, st.UpdateLine(ctx, line))

	line = c.Lines[1]
	line.ProductID = "prod-1"
	line.PolicyID = "pol-1"
	line.LimitationType = model.LimitCoinsurance
	line.LimitationValue = ptr(90.0)
	line.PriceOrigin = model.OriginPricelist
	line.PriceAdjusted = ptr(30.0)
	line.RemuneratedAmount = 27
	require.NoError(t, st.UpdateLine(ctx, line))

	got, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	assert.True(t, got.Lines[0].Rejected())
	assert.Equal(t, model.RejectionNotInPriceList, got.Lines[0].RejectionReason)
	assert.Equal(t, "pol-1", got.Lines[1].PolicyID)
	require.NotNil(t, got.Lines[1].LimitationValue)
	assert.Equal(t, 90.0, *got.Lines[1].LimitationValue)
	assert.Equal(t, 27.0, got.Lines[1].RemuneratedAmount)
}

func TestSQLite_GetInsuree(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)

	i, err := st.GetInsuree(context.Background(), "ins-1")
	require.NoError(t, err)
	assert.Equal(t, "CHF001", i.CHFID)
	assert.Equal(t, model.GenderMale, i.Gender)
	assert.False(t, i.Closed())
}

func TestSQLite_PoliciesCovering(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	policies, err := st.PoliciesCovering(ctx, "ins-1", date(2026, 3, 10), date(2026, 3, 10))
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "pol-1", policies[0].ID)
	assert.Equal(t, "prod-1", policies[0].ProductID)

	// Outside the policy window.
	policies, err = st.PoliciesCovering(ctx, "ins-1", date(2027, 3, 10), date(2027, 3, 10))
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestSQLite_GetProduct(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)

	p, err := st.GetProduct(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, "BASIC", p.Code)
	require.NotNil(t, p.DedTreatment.G)
	assert.Equal(t, 10.0, *p.DedTreatment.G)
	require.NotNil(t, p.CeilInsuree.G)
	assert.Equal(t, 5000.0, *p.CeilInsuree.G)
}

func TestSQLite_PolicyMemberCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)

	n, err := st.PolicyMemberCount(context.Background(), "pol-1", date(2026, 3, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLite_FindCoverageCandidates(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	candidates, err := st.FindCoverageCandidates(ctx, CandidateQuery{
		PolicyIDs:  []string{"pol-1"},
		Kind:       model.KindItem,
		CatalogID:  "item-1",
		VisitType:  model.VisitOrdinary,
		Adult:      true,
		TargetDate: date(2026, 3, 10),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "prod-1", candidates[0].ProductID)
	assert.Equal(t, 100.0, candidates[0].LimitationValue)
	assert.Equal(t, model.StageNew, candidates[0].PolicyStage)

	// The child band carries its own limitation value.
	candidates, err = st.FindCoverageCandidates(ctx, CandidateQuery{
		PolicyIDs:  []string{"pol-1"},
		Kind:       model.KindItem,
		CatalogID:  "item-1",
		VisitType:  model.VisitOrdinary,
		Adult:      false,
		TargetDate: date(2026, 3, 10),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 80.0, candidates[0].LimitationValue)

	// No policies, no candidates.
	candidates, err = st.FindCoverageCandidates(ctx, CandidateQuery{
		Kind: model.KindItem, CatalogID: "item-1", TargetDate: date(2026, 3, 10),
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSQLite_FindCoverageCandidates_RichestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	// Second product covering the same item with a lower co-insurance.
	require.NoError(t, st.Seed(ctx, Fixtures{
		Products: []model.Product{{ID: "prod-2", Code: "EXTRA", Name: "Extra Cover"}},
		Policies: []model.Policy{
			{ID: "pol-2", ProductID: "prod-2", FamilyID: "fam-1", Stage: model.StageRenewal,
				Effective: date(2026, 1, 1), Expiry: date(2026, 12, 31)},
		},
		CoverageTerms: []model.CoverageTerm{
			{ID: "ct-3", ProductID: "prod-2", Kind: model.KindItem, CatalogID: "item-1",
				LimitationType: model.LimitCoinsurance,
				LimitAdultO:    50, LimitChildO: 50,
				PriceOrigin:    model.OriginPricelist,
				ExclusionAdult: model.ExclusionNone, ExclusionChild: model.ExclusionNone},
		},
	}))

	candidates, err := st.FindCoverageCandidates(ctx, CandidateQuery{
		PolicyIDs:  []string{"pol-1", "pol-2"},
		Kind:       model.KindItem,
		CatalogID:  "item-1",
		VisitType:  model.VisitOrdinary,
		Adult:      true,
		TargetDate: date(2026, 3, 10),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, 100.0, candidates[0].LimitationValue)
	assert.Equal(t, 50.0, candidates[1].LimitationValue)
}

func TestSQLite_PricelistDetail(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	d, err := st.PricelistDetail(ctx, "fac-1", model.KindService, "svc-1", date(2026, 3, 10))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 35.0, d.Price)
	assert.Equal(t, 30.0, d.EffectivePrice())

	// Before the list takes effect there is no price.
	d, err = st.PricelistDetail(ctx, "fac-1", model.KindService, "svc-1", date(2025, 3, 10))
	require.NoError(t, err)
	assert.Nil(t, d)

	// Unknown facility.
	d, err = st.PricelistDetail(ctx, "fac-x", model.KindService, "svc-1", date(2026, 3, 10))
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestSQLite_UpsertPricelistDetails(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	n, err := st.UpsertPricelistDetails(ctx, []model.PricelistDetail{
		{FacilityID: "fac-1", Kind: model.KindItem, CatalogID: "item-1", Price: 3.0, ValidFrom: date(2026, 1, 1)},
		{FacilityID: "fac-2", Kind: model.KindItem, CatalogID: "item-1", Price: 2.2, ValidFrom: date(2026, 1, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	d, err := st.PricelistDetail(ctx, "fac-1", model.KindItem, "item-1", date(2026, 3, 10))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 3.0, d.Price)
}

func TestSQLite_PackageComposition(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	require.NoError(t, st.Seed(ctx, Fixtures{
		Packages: []PackageDef{
			{ServiceID: "svc-1", Components: []model.ComponentQty{
				{Kind: model.KindItem, CatalogID: "item-1", Qty: 2},
			}},
		},
	}))

	comps, err := st.PackageComposition(ctx, "svc-1")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, "item-1", comps[0].CatalogID)
	assert.Equal(t, 2.0, comps[0].Qty)

	comps, err = st.PackageComposition(ctx, "svc-none")
	require.NoError(t, err)
	assert.Empty(t, comps)
}

func TestSQLite_FrequencyConflict(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	// An ENTERED claim has not provided anything yet and must not count.
	found, err := st.FrequencyConflict(ctx, "ins-1", model.KindItem, "item-1", date(2026, 3, 25), 30, "clm-new")
	require.NoError(t, err)
	assert.False(t, found)

	// Promote the seeded claim so it counts as a prior provision.
	c, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	c.Status = model.ClaimStatusChecked
	require.NoError(t, st.UpdateClaim(ctx, c))

	// A later claim for the same item within 30 days conflicts.
	found, err = st.FrequencyConflict(ctx, "ins-1", model.KindItem, "item-1", date(2026, 3, 25), 30, "clm-new")
	require.NoError(t, err)
	assert.True(t, found)

	// Outside the frequency window it does not.
	found, err = st.FrequencyConflict(ctx, "ins-1", model.KindItem, "item-1", date(2026, 6, 25), 30, "clm-new")
	require.NoError(t, err)
	assert.False(t, found)

	// The claim under adjudication never conflicts with itself.
	found, err = st.FrequencyConflict(ctx, "ins-1", model.KindItem, "item-1", date(2026, 3, 25), 30, "clm-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLite_ClaimCategoryCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	c, err := st.GetClaim(ctx, "CLM001")
	require.NoError(t, err)
	c.Status = model.ClaimStatusProcessed
	c.Category = model.CategoryConsultation
	require.NoError(t, st.UpdateClaim(ctx, c))
	for _, l := range c.Lines {
		l.PolicyID = "pol-1"
		require.NoError(t, st.UpdateLine(ctx, l))
	}

	n, err := st.ClaimCategoryCount(ctx, "ins-1", "pol-1", model.CategoryConsultation,
		date(2026, 1, 1), date(2026, 12, 31), "clm-other")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The claim being adjudicated is excluded from its own count.
	n, err = st.ClaimCategoryCount(ctx, "ins-1", "pol-1", model.CategoryConsultation,
		date(2026, 1, 1), date(2026, 12, 31), "clm-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_Ledger_SumsAndArchive(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	require.NoError(t, st.CreateLedgerEntry(ctx, &model.LedgerEntry{
		ClaimID: "clm-1", PolicyID: "pol-1", InsureeID: "ins-1",
		DedG: 10, RemG: 90, RemConsultation: 90,
	}))

	sum, err := st.DeductibleConsumed(ctx, "pol-1", "ins-1", ScopeInsuree, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 10.0, sum)

	sum, err = st.CeilingConsumed(ctx, "pol-1", "", ScopePolicy, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 90.0, sum)

	sum, err = st.CategoryConsumed(ctx, "pol-1", model.CategoryConsultation)
	require.NoError(t, err)
	assert.Equal(t, 90.0, sum)

	// Another insuree under the same policy sees policy-wide consumption only.
	sum, err = st.DeductibleConsumed(ctx, "pol-1", "ins-2", ScopeInsuree, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum)

	// Archived entries stop counting.
	require.NoError(t, st.ArchiveLedger(ctx, "clm-1"))
	sum, err = st.CeilingConsumed(ctx, "pol-1", "", ScopePolicy, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum)
}

func TestSQLite_Ledger_InOutPatientColumns(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	require.NoError(t, st.CreateLedgerEntry(ctx, &model.LedgerEntry{
		ClaimID: "clm-1", PolicyID: "pol-1", InsureeID: "ins-1",
		DedIP: 25, RemIP: 200, Hospital: true,
	}))

	sum, err := st.DeductibleConsumed(ctx, "pol-1", "ins-1", ScopeInsuree, model.ScopeInPatient)
	require.NoError(t, err)
	assert.Equal(t, 25.0, sum)

	// The out-patient column stays untouched.
	sum, err = st.CeilingConsumed(ctx, "pol-1", "ins-1", ScopeInsuree, model.ScopeOutPatient)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum)
}

func TestSQLite_DeleteLedger(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	require.NoError(t, st.CreateLedgerEntry(ctx, &model.LedgerEntry{
		ClaimID: "clm-1", PolicyID: "pol-1", InsureeID: "ins-1", RemG: 50,
	}))
	require.NoError(t, st.DeleteLedger(ctx, "clm-1"))

	sum, err := st.CeilingConsumed(ctx, "pol-1", "ins-1", ScopeInsuree, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum)
}

func TestSQLite_WithinTx_RollsBackOnError(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	err := st.WithinTx(ctx, func(ctx context.Context) error {
		if err := st.CreateLedgerEntry(ctx, &model.LedgerEntry{
			ClaimID: "clm-1", PolicyID: "pol-1", InsureeID: "ins-1", RemG: 50,
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	sum, err := st.CeilingConsumed(ctx, "pol-1", "ins-1", ScopeInsuree, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum)
}

func TestSQLite_WithinTx_NestedJoinsOuter(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)
	ctx := context.Background()

	err := st.WithinTx(ctx, func(ctx context.Context) error {
		return st.WithinTx(ctx, func(ctx context.Context) error {
			return st.CreateLedgerEntry(ctx, &model.LedgerEntry{
				ClaimID: "clm-1", PolicyID: "pol-1", InsureeID: "ins-1", RemG: 50,
			})
		})
	})
	require.NoError(t, err)

	sum, err := st.CeilingConsumed(ctx, "pol-1", "ins-1", ScopeInsuree, model.ScopeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 50.0, sum)
}

func TestSQLite_Seed_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedBasicFixtures(t, st)

	// Reference data upserts cleanly on a second load.
	require.NoError(t, st.Seed(context.Background(), Fixtures{
		Insurees: []model.Insuree{
			{ID: "ins-1", CHFID: "CHF001", FamilyID: "fam-1", Gender: model.GenderMale, BirthDate: date(1980, 5, 20)},
		},
		Items: []model.Item{
			{ID: "item-1", Code: "PARA", Name: "Paracetamol 500mg", Price: 2.8, CareType: model.CareBoth},
		},
	}))

	c, err := st.GetClaim(context.Background(), "CLM001")
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol 500mg", c.Lines[0].Item.Name)
	assert.Equal(t, 2.8, c.Lines[0].Item.Price)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
