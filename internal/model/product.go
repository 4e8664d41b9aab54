package model

import "time"

// CeilingInterpretation selects how a claim is classified in-patient for
// ceiling purposes.
type CeilingInterpretation string

const (
	// CeilingInPatient classifies by the claim's date span.
	CeilingInPatient CeilingInterpretation = "I"
	// CeilingHospitalLevel classifies by the facility grade.
	CeilingHospitalLevel CeilingInterpretation = "H"
)

// Limit holds an amount at each of the general / in-patient / out-patient
// scopes. A nil amount means the scope is not configured.
type Limit struct {
	G  *float64 `json:"g,omitempty" yaml:"g"`
	IP *float64 `json:"ip,omitempty" yaml:"ip"`
	OP *float64 `json:"op,omitempty" yaml:"op"`
}

// At returns the general amount if configured, else the IP or OP amount
// matching the hospital flag. The second result names the scope used.
func (l Limit) At(hospital bool) (*float64, LimitScope) {
	if l.G != nil {
		return l.G, ScopeGeneral
	}
	if hospital {
		if l.IP != nil {
			return l.IP, ScopeInPatient
		}
	} else if l.OP != nil {
		return l.OP, ScopeOutPatient
	}
	return nil, ScopeGeneral
}

// LimitScope names which variant of a Limit was resolved.
type LimitScope string

const (
	ScopeGeneral    LimitScope = "G"
	ScopeInPatient  LimitScope = "I"
	ScopeOutPatient LimitScope = "O"
)

// Product is a coverage plan: its deductibles and ceilings at the three
// granularities, category sub-ceilings, visit-count maxima, and per-member
// ceiling scaling.
type Product struct {
	ID   string `json:"id" yaml:"id"`
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`

	// Deductibles and ceilings. Treatment-level terms are fresh per claim;
	// insuree and policy terms accumulate across prior ledger entries.
	DedTreatment  Limit `json:"ded_treatment" yaml:"ded_treatment"`
	DedInsuree    Limit `json:"ded_insuree" yaml:"ded_insuree"`
	DedPolicy     Limit `json:"ded_policy" yaml:"ded_policy"`
	CeilTreatment Limit `json:"max_treatment" yaml:"max_treatment"`
	CeilInsuree   Limit `json:"max_insuree" yaml:"max_insuree"`
	CeilPolicy    Limit `json:"max_policy" yaml:"max_policy"`

	// Per-member ceiling scaling for policy-level ceilings.
	MemberThreshold int      `json:"member_threshold,omitempty" yaml:"member_threshold"`
	ExtraMemberCeil float64  `json:"extra_member_ceiling,omitempty" yaml:"extra_member_ceiling"`
	ExtraMemberIP   float64  `json:"extra_member_ceiling_ip,omitempty" yaml:"extra_member_ceiling_ip"`
	ExtraMemberOP   float64  `json:"extra_member_ceiling_op,omitempty" yaml:"extra_member_ceiling_op"`
	MaxCeilPolicy   *float64 `json:"max_ceiling_policy,omitempty" yaml:"max_ceiling_policy"`
	MaxCeilPolicyIP *float64 `json:"max_ceiling_policy_ip,omitempty" yaml:"max_ceiling_policy_ip"`
	MaxCeilPolicyOP *float64 `json:"max_ceiling_policy_op,omitempty" yaml:"max_ceiling_policy_op"`

	// Category sub-ceilings (amounts). The visit category has none.
	MaxAmountSurgery         *float64 `json:"max_amount_surgery,omitempty" yaml:"max_amount_surgery"`
	MaxAmountDelivery        *float64 `json:"max_amount_delivery,omitempty" yaml:"max_amount_delivery"`
	MaxAmountAntenatal       *float64 `json:"max_amount_antenatal,omitempty" yaml:"max_amount_antenatal"`
	MaxAmountHospitalization *float64 `json:"max_amount_hospitalization,omitempty" yaml:"max_amount_hospitalization"`
	MaxAmountConsultation    *float64 `json:"max_amount_consultation,omitempty" yaml:"max_amount_consultation"`

	// Visit-count maxima per policy period.
	MaxVisits             *int `json:"max_visits,omitempty" yaml:"max_visits"`
	MaxConsultations      *int `json:"max_consultations,omitempty" yaml:"max_consultations"`
	MaxSurgeries          *int `json:"max_surgeries,omitempty" yaml:"max_surgeries"`
	MaxDeliveries         *int `json:"max_deliveries,omitempty" yaml:"max_deliveries"`
	MaxAntenatal          *int `json:"max_antenatal,omitempty" yaml:"max_antenatal"`
	MaxHospitalAdmissions *int `json:"max_hospital_admissions,omitempty" yaml:"max_hospital_admissions"`

	CeilingInterpretation CeilingInterpretation `json:"ceiling_interpretation" yaml:"ceiling_interpretation"`

	ValidityTo *time.Time `json:"validity_to,omitempty" yaml:"-"`
}

// CategoryCeiling returns the configured sub-ceiling for a category, or nil.
func (p *Product) CategoryCeiling(cat ClaimCategory) *float64 {
	switch cat {
	case CategorySurgery:
		return p.MaxAmountSurgery
	case CategoryDelivery:
		return p.MaxAmountDelivery
	case CategoryAntenatal:
		return p.MaxAmountAntenatal
	case CategoryHospitalization:
		return p.MaxAmountHospitalization
	case CategoryConsultation:
		return p.MaxAmountConsultation
	default:
		return nil
	}
}

// CategoryCountMax returns the visit-count maximum for a category, or nil.
func (p *Product) CategoryCountMax(cat ClaimCategory) (*int, RejectionCode) {
	switch cat {
	case CategoryHospitalization:
		return p.MaxHospitalAdmissions, RejectionMaxHospitalAdmission
	case CategoryVisit:
		return p.MaxVisits, RejectionMaxVisits
	case CategoryConsultation:
		return p.MaxConsultations, RejectionMaxConsultations
	case CategorySurgery:
		return p.MaxSurgeries, RejectionMaxSurgeries
	case CategoryDelivery:
		return p.MaxDeliveries, RejectionMaxDeliveries
	case CategoryAntenatal:
		return p.MaxAntenatal, RejectionMaxAntenatal
	default:
		return nil, 0
	}
}

// PolicyStage distinguishes first enrollment from renewal; waiting periods
// run from the effective date of new policies only.
type PolicyStage string

const (
	StageNew     PolicyStage = "N"
	StageRenewal PolicyStage = "R"
)

// Policy binds an insuree's family to a product over an effective window.
type Policy struct {
	ID        string      `json:"id" yaml:"id"`
	ProductID string      `json:"product_id" yaml:"product_id"`
	FamilyID  string      `json:"family_id" yaml:"family_id"`
	Stage     PolicyStage `json:"stage" yaml:"stage"`
	Effective time.Time   `json:"effective_date" yaml:"effective_date"`
	Expiry    time.Time   `json:"expiry_date" yaml:"expiry_date"`
}

// Covers reports whether the policy window contains the given date.
func (p *Policy) Covers(at time.Time) bool {
	return !at.Before(p.Effective) && !at.After(p.Expiry)
}

// CeilingExclusion marks coverage terms exempt from the general ceiling.
type CeilingExclusion string

const (
	ExclusionNone     CeilingExclusion = "N"
	ExclusionHospital CeilingExclusion = "H"
	ExclusionBoth     CeilingExclusion = "B"
)

// Exempt reports whether the exclusion applies for the hospital flag.
func (e CeilingExclusion) Exempt(hospital bool) bool {
	switch e {
	case ExclusionBoth:
		return true
	case ExclusionHospital:
		return hospital
	default:
		return false
	}
}

// CoverageTerm is the stored coverage of one catalog entity under a product:
// limitation values per visit type and adult/child band, waiting periods,
// provision caps and ceiling-exclusion flags.
type CoverageTerm struct {
	ID             string         `json:"id" yaml:"id"`
	ProductID      string         `json:"product_id" yaml:"product_id"`
	Kind           LineKind       `json:"kind" yaml:"kind"`
	CatalogID      string         `json:"catalog_id" yaml:"catalog_id"`
	LimitationType LimitationType `json:"limitation_type" yaml:"limitation_type"`

	LimitAdultO float64 `json:"limit_adult_o" yaml:"limit_adult_o"`
	LimitAdultE float64 `json:"limit_adult_e" yaml:"limit_adult_e"`
	LimitAdultR float64 `json:"limit_adult_r" yaml:"limit_adult_r"`
	LimitChildO float64 `json:"limit_child_o" yaml:"limit_child_o"`
	LimitChildE float64 `json:"limit_child_e" yaml:"limit_child_e"`
	LimitChildR float64 `json:"limit_child_r" yaml:"limit_child_r"`

	PriceOrigin        PriceOrigin `json:"price_origin" yaml:"price_origin"`
	WaitingMonthsAdult int         `json:"waiting_months_adult" yaml:"waiting_months_adult"`
	WaitingMonthsChild int         `json:"waiting_months_child" yaml:"waiting_months_child"`
	MaxProvisionsAdult *int        `json:"max_provisions_adult,omitempty" yaml:"max_provisions_adult"`
	MaxProvisionsChild *int        `json:"max_provisions_child,omitempty" yaml:"max_provisions_child"`

	ExclusionAdult CeilingExclusion `json:"ceiling_exclusion_adult" yaml:"ceiling_exclusion_adult"`
	ExclusionChild CeilingExclusion `json:"ceiling_exclusion_child" yaml:"ceiling_exclusion_child"`

	ValidityTo *time.Time `json:"validity_to,omitempty" yaml:"-"`
}

// Limit returns the limitation value for the adult/child band and visit type.
func (t *CoverageTerm) Limit(adult bool, visit VisitType) float64 {
	if adult {
		switch visit {
		case VisitEmergency:
			return t.LimitAdultE
		case VisitReferral:
			return t.LimitAdultR
		default:
			return t.LimitAdultO
		}
	}
	switch visit {
	case VisitEmergency:
		return t.LimitChildE
	case VisitReferral:
		return t.LimitChildR
	default:
		return t.LimitChildO
	}
}

// CoverageCandidate is one product's coverage terms for a catalog entity,
// produced by the repository ordered richest-first within each limitation
// pool.
type CoverageCandidate struct {
	ProductID       string           `json:"product_id"`
	PolicyID        string           `json:"policy_id"`
	PolicyEffective time.Time        `json:"policy_effective"`
	PolicyStage     PolicyStage      `json:"policy_stage"`
	LimitationType  LimitationType   `json:"limitation_type"`
	LimitationValue float64          `json:"limitation_value"`
	PriceOrigin     PriceOrigin      `json:"price_origin"`
	WaitingMonths   int              `json:"waiting_months"`
	MaxProvisions   *int             `json:"max_provisions,omitempty"`
	ProvisionsUsed  int              `json:"provisions_used"`
	ExclusionAdult  CeilingExclusion `json:"ceiling_exclusion_adult"`
	ExclusionChild  CeilingExclusion `json:"ceiling_exclusion_child"`
}

// Exclusion returns the adult or child ceiling exclusion flag.
func (c *CoverageCandidate) Exclusion(adult bool) CeilingExclusion {
	if adult {
		return c.ExclusionAdult
	}
	return c.ExclusionChild
}
