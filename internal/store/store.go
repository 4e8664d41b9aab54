package store

import (
	"context"
	"time"

	"github.com/meridianhealth/claims-cli/internal/model"
)

// ClaimFilter specifies criteria for listing claims.
type ClaimFilter struct {
	Status     model.ClaimStatus `json:"status,omitempty"`
	FacilityID string            `json:"facility_id,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// CandidateQuery selects coverage terms for one claim line.
type CandidateQuery struct {
	PolicyIDs  []string
	Kind       model.LineKind
	CatalogID  string
	VisitType  model.VisitType
	Adult      bool
	TargetDate time.Time
}

// PackageDef names the components bundled under one package service.
type PackageDef struct {
	ServiceID  string               `yaml:"service_id"`
	Components []model.ComponentQty `yaml:"components"`
}

// Fixtures is a bundle of reference and claim data loaded in one call,
// used by the seed command and by integration setups.
type Fixtures struct {
	Insurees      []model.Insuree         `yaml:"insurees"`
	Products      []model.Product         `yaml:"products"`
	Policies      []model.Policy          `yaml:"policies"`
	Items         []model.Item            `yaml:"items"`
	Services      []model.Service         `yaml:"services"`
	Packages      []PackageDef            `yaml:"packages"`
	CoverageTerms []model.CoverageTerm    `yaml:"coverage_terms"`
	Pricelists    []model.PricelistDetail `yaml:"pricelists"`
	Claims        []model.Claim           `yaml:"claims"`
}

// ConsumptionScope selects whose prior consumption is summed when resolving
// a cumulative deductible or ceiling.
type ConsumptionScope int

const (
	// ScopeInsuree sums what this insuree consumed under the policy.
	ScopeInsuree ConsumptionScope = iota
	// ScopePolicy sums what anyone consumed under the policy.
	ScopePolicy
)

// Store defines the persistence interface for the adjudication engine.
// Implementations historize rows rather than deleting them, except where an
// operation explicitly deletes (review rejecting every line of a claim).
type Store interface {
	// Claims
	GetClaim(ctx context.Context, code string) (*model.Claim, error)
	ListClaims(ctx context.Context, filter ClaimFilter) ([]model.Claim, error)
	UpdateClaim(ctx context.Context, claim *model.Claim) error
	UpdateLine(ctx context.Context, line *model.ClaimLine) error

	// Insurees and policies
	GetInsuree(ctx context.Context, insureeID string) (*model.Insuree, error)
	PoliciesCovering(ctx context.Context, insureeID string, from, to time.Time) ([]model.Policy, error)
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	PolicyMemberCount(ctx context.Context, policyID string, at time.Time) (int, error)

	// Coverage terms, ordered by descending limitation value within each
	// limitation-type pool.
	FindCoverageCandidates(ctx context.Context, q CandidateQuery) ([]model.CoverageCandidate, error)

	// Pricing
	CatalogIDByCode(ctx context.Context, kind model.LineKind, code string) (string, error)
	PricelistDetail(ctx context.Context, facilityID string, kind model.LineKind, catalogID string, at time.Time) (*model.PricelistDetail, error)
	UpsertPricelistDetails(ctx context.Context, details []model.PricelistDetail) (int64, error)
	PackageComposition(ctx context.Context, serviceID string) ([]model.ComponentQty, error)

	// Validation lookups
	FrequencyConflict(ctx context.Context, insureeID string, kind model.LineKind, catalogID string, target time.Time, days int, excludeClaimID string) (bool, error)
	ClaimCategoryCount(ctx context.Context, insureeID, policyID string, cat model.ClaimCategory, from, to time.Time, excludeClaimID string) (int, error)

	// Prior consumption for cumulative deductibles and ceilings. Category
	// passes model.ClaimCategory("") for the general sums.
	DeductibleConsumed(ctx context.Context, policyID, insureeID string, scope ConsumptionScope, limitScope model.LimitScope) (float64, error)
	CeilingConsumed(ctx context.Context, policyID, insureeID string, scope ConsumptionScope, limitScope model.LimitScope) (float64, error)
	CategoryConsumed(ctx context.Context, policyID string, cat model.ClaimCategory) (float64, error)

	// Ledger
	ArchiveLedger(ctx context.Context, claimID string) error
	DeleteLedger(ctx context.Context, claimID string) error
	CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// WithinTx runs fn inside one transaction; the per-claim boundary in
	// batch runs so one claim's failure never rolls back its siblings.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Seed loads fixture data, inserting claims with their lines.
	Seed(ctx context.Context, fx Fixtures) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
