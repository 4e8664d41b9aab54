package model

import (
	"time"
)

// ClaimStatus is the lifecycle state of a claim. Values are stable integers
// persisted to the store and shared with downstream reporting tools.
type ClaimStatus int

const (
	ClaimStatusRejected  ClaimStatus = 1
	ClaimStatusEntered   ClaimStatus = 2
	ClaimStatusChecked   ClaimStatus = 4
	ClaimStatusProcessed ClaimStatus = 8
	ClaimStatusValuated  ClaimStatus = 16
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimStatusRejected:
		return "rejected"
	case ClaimStatusEntered:
		return "entered"
	case ClaimStatusChecked:
		return "checked"
	case ClaimStatusProcessed:
		return "processed"
	case ClaimStatusValuated:
		return "valuated"
	default:
		return "unknown"
	}
}

// FeedbackStatus and ReviewStatus are independent sub-machines driven by the
// surrounding mutation layer. The accumulator only demotes a stale SELECTED
// to BYPASSED once a claim is processed.
type FeedbackStatus int

const (
	FeedbackIdle        FeedbackStatus = 1
	FeedbackNotSelected FeedbackStatus = 2
	FeedbackSelected    FeedbackStatus = 4
	FeedbackDelivered   FeedbackStatus = 8
	FeedbackBypassed    FeedbackStatus = 16
)

// ReviewStatus mirrors FeedbackStatus for the medical review track.
type ReviewStatus int

const (
	ReviewIdle        ReviewStatus = 1
	ReviewNotSelected ReviewStatus = 2
	ReviewSelected    ReviewStatus = 4
	ReviewDelivered   ReviewStatus = 8
	ReviewBypassed    ReviewStatus = 16
)

// ClaimCategory classifies a claim by the most significant service it carries.
type ClaimCategory string

const (
	CategorySurgery         ClaimCategory = "S"
	CategoryDelivery        ClaimCategory = "D"
	CategoryAntenatal       ClaimCategory = "A"
	CategoryHospitalization ClaimCategory = "H"
	CategoryConsultation    ClaimCategory = "C"
	CategoryOther           ClaimCategory = "O"
	CategoryVisit           ClaimCategory = "V"
)

// VisitType distinguishes how the insuree arrived at the facility.
type VisitType string

const (
	VisitOrdinary  VisitType = "O"
	VisitEmergency VisitType = "E"
	VisitReferral  VisitType = "R"
)

// CareType is the in/out-patient capability of a facility, line or coverage term.
type CareType string

const (
	CareOutpatient CareType = "O"
	CareInpatient  CareType = "I"
	CareBoth       CareType = "B"
)

// FacilityLevel is the grade of the claiming health facility. Hospital-grade
// facilities can make a single-day claim count as a hospital visit depending
// on the product's ceiling interpretation.
type FacilityLevel string

const (
	LevelDispensary   FacilityLevel = "D"
	LevelHealthCenter FacilityLevel = "C"
	LevelHospital     FacilityLevel = "H"
)

// Claim is a health-facility claim under adjudication. It owns its lines;
// product and policy references on lines are shared lookups, never copies.
type Claim struct {
	ID          string         `json:"id" yaml:"id"`
	Code        string         `json:"code" yaml:"code"`
	InsureeID   string         `json:"insuree_id" yaml:"insuree_id"`
	FacilityID  string         `json:"facility_id" yaml:"facility_id"`
	Level       FacilityLevel  `json:"facility_level" yaml:"facility_level"`
	CareType    CareType       `json:"facility_care_type" yaml:"facility_care_type"`
	Status      ClaimStatus    `json:"status" yaml:"status"`
	Feedback    FeedbackStatus `json:"feedback_status" yaml:"feedback_status"`
	Review      ReviewStatus   `json:"review_status" yaml:"review_status"`
	Category    ClaimCategory  `json:"category,omitempty" yaml:"category"`
	VisitType   VisitType      `json:"visit_type,omitempty" yaml:"visit_type"`
	DateFrom    *time.Time     `json:"date_from,omitempty" yaml:"date_from"`
	DateTo      *time.Time     `json:"date_to,omitempty" yaml:"date_to"`
	DateClaimed time.Time      `json:"date_claimed" yaml:"date_claimed"`

	RejectionReason RejectionCode `json:"rejection_reason,omitempty" yaml:"-"`

	Claimed     float64  `json:"claimed" yaml:"claimed"`
	Approved    *float64 `json:"approved,omitempty" yaml:"-"`
	Remunerated *float64 `json:"remunerated,omitempty" yaml:"-"`
	Valuated    *float64 `json:"valuated,omitempty" yaml:"-"`

	Lines []*ClaimLine `json:"lines" yaml:"lines"`

	AuditUserID  int        `json:"audit_user_id,omitempty" yaml:"audit_user_id"`
	ProcessStamp *time.Time `json:"process_stamp,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// SingleDay reports whether the claim covers at most one calendar day.
// Multi-day claims imply hospitalization for care-type compatibility.
func (c *Claim) SingleDay() bool {
	if c.DateFrom == nil || c.DateTo == nil {
		return true
	}
	return dateEqual(*c.DateFrom, *c.DateTo)
}

// HospitalVisit reports whether the claim counts as in-patient for ceiling
// purposes. Under the in-patient interpretation only the date span matters;
// under the hospital-level interpretation the facility grade decides.
func (c *Claim) HospitalVisit(interpretation CeilingInterpretation) bool {
	if interpretation == CeilingHospitalLevel {
		return c.Level == LevelHospital
	}
	return !c.SingleDay()
}

// ItemLines returns the item-kind lines in claim order.
func (c *Claim) ItemLines() []*ClaimLine {
	return c.linesOfKind(KindItem)
}

// ServiceLines returns the service-kind lines in claim order.
func (c *Claim) ServiceLines() []*ClaimLine {
	return c.linesOfKind(KindService)
}

func (c *Claim) linesOfKind(k LineKind) []*ClaimLine {
	var out []*ClaimLine
	for _, l := range c.Lines {
		if l.Kind == k {
			out = append(out, l)
		}
	}
	return out
}

func dateEqual(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
