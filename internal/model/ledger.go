package model

import "time"

// PricelistDetail is a facility-scoped price for a catalog entity, valid over
// a date range. A non-nil override replaces the listed price.
type PricelistDetail struct {
	ID         string     `json:"id" yaml:"id"`
	FacilityID string     `json:"facility_id" yaml:"facility_id"`
	Kind       LineKind   `json:"kind" yaml:"kind"`
	CatalogID  string     `json:"catalog_id" yaml:"catalog_id"`
	Price      float64    `json:"price" yaml:"price"`
	Override   *float64   `json:"price_overrule,omitempty" yaml:"price_overrule"`
	ValidFrom  time.Time  `json:"valid_from" yaml:"valid_from"`
	ValidTo    *time.Time `json:"valid_to,omitempty" yaml:"valid_to"`
}

// EffectivePrice returns the override when present, else the listed price.
func (d *PricelistDetail) EffectivePrice() float64 {
	if d.Override != nil {
		return *d.Override
	}
	return d.Price
}

// LedgerEntry records the deduction and remuneration of one (claim, policy)
// pair, tagged in-patient or out-patient. Entries are never mutated after
// creation; superseded entries are archived by the store.
type LedgerEntry struct {
	ID        string `json:"id"`
	ClaimID   string `json:"claim_id"`
	PolicyID  string `json:"policy_id"`
	InsureeID string `json:"insuree_id"`

	DedG  float64 `json:"ded_g"`
	DedIP float64 `json:"ded_ip"`
	DedOP float64 `json:"ded_op"`

	RemG  float64 `json:"rem_g"`
	RemIP float64 `json:"rem_ip"`
	RemOP float64 `json:"rem_op"`

	RemConsultation    float64 `json:"rem_consult"`
	RemSurgery         float64 `json:"rem_surgery"`
	RemDelivery        float64 `json:"rem_delivery"`
	RemHospitalization float64 `json:"rem_hospitalization"`
	RemAntenatal       float64 `json:"rem_antenatal"`

	Hospital    bool      `json:"hospital"`
	AuditUserID int       `json:"audit_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
