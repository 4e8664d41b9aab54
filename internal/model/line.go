package model

import "time"

// LineKind tags the item/service variant of a claim line.
type LineKind string

const (
	KindItem    LineKind = "item"
	KindService LineKind = "service"
)

// LineStatus is the pass/reject state of a single claim line.
type LineStatus int

const (
	LineRejected LineStatus = 1
	LinePassed   LineStatus = 2
)

// LimitationType is how a coverage term caps patient cost.
type LimitationType string

const (
	// LimitCoinsurance caps by percentage of the line price.
	LimitCoinsurance LimitationType = "C"
	// LimitFixed caps at a fixed covered amount.
	LimitFixed LimitationType = "F"
)

// PriceOrigin is the source of a line's price during valuation.
type PriceOrigin string

const (
	OriginClaim     PriceOrigin = "C"
	OriginPricelist PriceOrigin = "P"
	// OriginRelative defers final remuneration to a later batch valuation.
	OriginRelative PriceOrigin = "R"
)

// PackageType marks composite services whose price is only honored when the
// claimed sub-items and sub-services exactly match the catalog bundle.
type PackageType string

const (
	PackageSingle PackageType = "S"
	PackageBundle PackageType = "P"
)

// CatalogRef is the shared capability view over the item and service variants
// of a claim line.
type CatalogRef interface {
	CatalogID() string
	CatalogCode() string
	LineCareType() CareType
	PatientCategoryMask() uint8
	FrequencyDays() int
	CatalogPrice() float64
	Retired() *time.Time
}

// Item is a medical item (drug, consumable) catalog entry.
type Item struct {
	ID         string     `json:"id" yaml:"id"`
	Code       string     `json:"code" yaml:"code"`
	Name       string     `json:"name" yaml:"name"`
	Price      float64    `json:"price" yaml:"price"`
	CareType   CareType   `json:"care_type" yaml:"care_type"`
	PatCat     uint8      `json:"patient_category" yaml:"patient_category"`
	Frequency  int        `json:"frequency,omitempty" yaml:"frequency"`
	ValidityTo *time.Time `json:"validity_to,omitempty" yaml:"-"`
}

func (i *Item) CatalogID() string          { return i.ID }
func (i *Item) CatalogCode() string        { return i.Code }
func (i *Item) LineCareType() CareType     { return i.CareType }
func (i *Item) PatientCategoryMask() uint8 { return i.PatCat }
func (i *Item) FrequencyDays() int         { return i.Frequency }
func (i *Item) CatalogPrice() float64      { return i.Price }
func (i *Item) Retired() *time.Time        { return i.ValidityTo }

// Service is a medical service catalog entry.
type Service struct {
	ID         string        `json:"id" yaml:"id"`
	Code       string        `json:"code" yaml:"code"`
	Name       string        `json:"name" yaml:"name"`
	Price      float64       `json:"price" yaml:"price"`
	CareType   CareType      `json:"care_type" yaml:"care_type"`
	Category   ClaimCategory `json:"category,omitempty" yaml:"category"`
	PackType   PackageType   `json:"package_type,omitempty" yaml:"package_type"`
	PatCat     uint8         `json:"patient_category" yaml:"patient_category"`
	Frequency  int           `json:"frequency,omitempty" yaml:"frequency"`
	ValidityTo *time.Time    `json:"validity_to,omitempty" yaml:"-"`
}

func (s *Service) CatalogID() string          { return s.ID }
func (s *Service) CatalogCode() string        { return s.Code }
func (s *Service) LineCareType() CareType     { return s.CareType }
func (s *Service) PatientCategoryMask() uint8 { return s.PatCat }
func (s *Service) FrequencyDays() int         { return s.Frequency }
func (s *Service) CatalogPrice() float64      { return s.Price }
func (s *Service) Retired() *time.Time        { return s.ValidityTo }

// ComponentQty is one catalog entity and quantity inside a package bundle or
// claimed alongside a package service line.
type ComponentQty struct {
	Kind      LineKind `json:"kind" yaml:"kind"`
	CatalogID string   `json:"catalog_id" yaml:"catalog_id"`
	Qty       float64  `json:"qty" yaml:"qty"`
}

// ClaimLine is one item or service of a claim. Exactly one of Item/Service is
// populated, selected by Kind.
type ClaimLine struct {
	ID      string   `json:"id" yaml:"id"`
	ClaimID string   `json:"claim_id" yaml:"claim_id"`
	Kind    LineKind `json:"kind" yaml:"kind"`
	Item    *Item    `json:"item,omitempty" yaml:"item"`
	Service *Service `json:"service,omitempty" yaml:"service"`

	QtyProvided float64  `json:"qty_provided" yaml:"qty_provided"`
	QtyApproved *float64 `json:"qty_approved,omitempty" yaml:"qty_approved"`

	PriceAsked    float64  `json:"price_asked" yaml:"price_asked"`
	PriceAdjusted *float64 `json:"price_adjusted,omitempty" yaml:"price_adjusted"`
	PriceApproved *float64 `json:"price_approved,omitempty" yaml:"price_approved"`
	PriceValuated *float64 `json:"price_valuated,omitempty" yaml:"-"`

	Status          LineStatus    `json:"status" yaml:"status"`
	RejectionReason RejectionCode `json:"rejection_reason,omitempty" yaml:"-"`
	ValidityTo      *time.Time    `json:"validity_to,omitempty" yaml:"-"`

	// Assigned by the matcher.
	ProductID       string         `json:"product_id,omitempty"`
	PolicyID        string         `json:"policy_id,omitempty"`
	LimitationType  LimitationType `json:"limitation_type,omitempty"`
	LimitationValue *float64       `json:"limitation_value,omitempty"`
	PriceOrigin     PriceOrigin    `json:"price_origin,omitempty"`
	// CeilingExclusion is resolved for the insuree's adult/child band when
	// the matcher attaches the coverage term.
	CeilingExclusion CeilingExclusion `json:"ceiling_exclusion,omitempty"`

	// Written by the accumulator.
	DeductableAmount      float64 `json:"deductable_amount"`
	ExceedCeilingAmount   float64 `json:"exceed_ceiling_amount"`
	ExceedCeilingCategory float64 `json:"exceed_ceiling_amount_category"`
	RemuneratedAmount     float64 `json:"remunerated_amount"`
}

// Catalog returns the capability view of whichever variant is populated.
func (l *ClaimLine) Catalog() CatalogRef {
	// Return an untyped nil so callers can guard with a plain nil check
	// when the catalog row behind the line is gone.
	if l.Kind == KindService {
		if l.Service == nil {
			return nil
		}
		return l.Service
	}
	if l.Item == nil {
		return nil
	}
	return l.Item
}

// TargetDate is the date a line's validity, pricing and frequency checks are
// evaluated at: the claim's date_to when set, else date_from.
func (l *ClaimLine) TargetDate(c *Claim) time.Time {
	if c.DateTo != nil {
		return *c.DateTo
	}
	if c.DateFrom != nil {
		return *c.DateFrom
	}
	return c.DateClaimed
}

// Quantity is the approved quantity when set, else the provided one.
func (l *ClaimLine) Quantity() float64 {
	if l.QtyApproved != nil && *l.QtyApproved > 0 {
		return *l.QtyApproved
	}
	return l.QtyProvided
}

// Rejected reports whether the line carries a rejection.
func (l *ClaimLine) Rejected() bool {
	return l.RejectionReason != 0
}

// Reject stamps a rejection reason on the line, keeping the first one.
func (l *ClaimLine) Reject(code RejectionCode) {
	if l.RejectionReason == 0 {
		l.RejectionReason = code
	}
	l.Status = LineRejected
}
