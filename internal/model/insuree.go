package model

import "time"

// Patient-category mask bits. Catalog entities declare which demographics
// they apply to; 0 is the wildcard accepting everyone.
const (
	PatCatMale   uint8 = 1
	PatCatFemale uint8 = 2
	PatCatAdult  uint8 = 4
	PatCatMinor  uint8 = 8
)

// Gender of an insuree as recorded at enrollment.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Insuree is the covered person a claim is made for.
type Insuree struct {
	ID         string     `json:"id" yaml:"id"`
	CHFID      string     `json:"chf_id" yaml:"chf_id"`
	FamilyID   string     `json:"family_id" yaml:"family_id"`
	Gender     Gender     `json:"gender" yaml:"gender"`
	BirthDate  time.Time  `json:"birth_date" yaml:"birth_date"`
	ValidityTo *time.Time `json:"validity_to,omitempty" yaml:"-"`
}

// Closed reports whether the insuree record has been invalidated.
func (i *Insuree) Closed() bool {
	return i.ValidityTo != nil
}

// Adult reports whether the insuree is an adult at the given date.
func (i *Insuree) Adult(at time.Time, adultAge int) bool {
	return i.AgeAt(at) >= adultAge
}

// AgeAt returns the insuree's age in whole years at the given date.
func (i *Insuree) AgeAt(at time.Time) int {
	years := at.Year() - i.BirthDate.Year()
	anniversary := i.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// Mask computes the insuree's patient-category bitmask at the given date.
func (i *Insuree) Mask(at time.Time, adultAge int) uint8 {
	var m uint8
	if i.Gender == GenderFemale {
		m |= PatCatFemale
	} else {
		m |= PatCatMale
	}
	if i.Adult(at, adultAge) {
		m |= PatCatAdult
	} else {
		m |= PatCatMinor
	}
	return m
}
