package model

import "fmt"

// RejectionCode is a stable small integer persisted on claims and lines.
// Values must never be renumbered; downstream reporting reads them directly.
type RejectionCode int

const (
	// RejectedByReview marks a line struck out by a medical-officer review.
	RejectedByReview RejectionCode = -1

	RejectionInvalidItemOrService RejectionCode = 1
	RejectionNotInPriceList       RejectionCode = 2
	RejectionNoProductFound       RejectionCode = 3
	RejectionCategoryLimitation   RejectionCode = 4
	RejectionFrequencyFailure     RejectionCode = 5
	RejectionInvalidClaim         RejectionCode = 6
	RejectionFamily               RejectionCode = 7
	RejectionNoCoverage           RejectionCode = 8
	RejectionTargetDate           RejectionCode = 9
	RejectionCareType             RejectionCode = 10
	RejectionMaxHospitalAdmission RejectionCode = 11
	RejectionMaxVisits            RejectionCode = 12
	RejectionMaxConsultations     RejectionCode = 13
	RejectionMaxSurgeries         RejectionCode = 14
	RejectionMaxDeliveries        RejectionCode = 15
	RejectionQtyOverLimit         RejectionCode = 16
	RejectionWaitingPeriod        RejectionCode = 17
	RejectionMaxAntenatal         RejectionCode = 19
)

var rejectionMessages = map[RejectionCode]string{
	RejectedByReview:              "rejected by review",
	RejectionInvalidItemOrService: "invalid item or service",
	RejectionNotInPriceList:       "not in the facility price list",
	RejectionNoProductFound:       "no covering product found",
	RejectionCategoryLimitation:   "patient category limitation",
	RejectionFrequencyFailure:     "frequency limit not reached",
	RejectionInvalidClaim:         "invalid claim",
	RejectionFamily:               "invalid insuree record",
	RejectionNoCoverage:           "no active policy covers the claim period",
	RejectionTargetDate:           "invalid claim target date",
	RejectionCareType:             "care type incompatible with facility",
	RejectionMaxHospitalAdmission: "maximum hospital admissions reached",
	RejectionMaxVisits:            "maximum visits reached",
	RejectionMaxConsultations:     "maximum consultations reached",
	RejectionMaxSurgeries:         "maximum surgeries reached",
	RejectionMaxDeliveries:        "maximum deliveries reached",
	RejectionQtyOverLimit:         "quantity above coverage limit",
	RejectionWaitingPeriod:        "waiting period not elapsed",
	RejectionMaxAntenatal:         "maximum antenatal visits reached",
}

func (c RejectionCode) String() string {
	if m, ok := rejectionMessages[c]; ok {
		return m
	}
	return fmt.Sprintf("rejection code %d", int(c))
}

// categoryMaximumCodes is the class of rejections that, once raised on any
// line, reject every line of the claim with that single code.
var categoryMaximumCodes = map[RejectionCode]bool{
	RejectionMaxHospitalAdmission: true,
	RejectionMaxVisits:            true,
	RejectionMaxConsultations:     true,
	RejectionMaxSurgeries:         true,
	RejectionMaxDeliveries:        true,
	RejectionMaxAntenatal:         true,
}

// CategoryMaximum reports whether the code belongs to the category-maximum
// class that overrides all other line-level rejections.
func (c RejectionCode) CategoryMaximum() bool {
	return categoryMaximumCodes[c]
}

// RuleError is a business rejection, accumulated into lists and returned to
// the caller. It is deliberately not a Go error: infrastructure faults travel
// separately so callers can tell "claim denied" from "claim unresolved".
type RuleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// NewRuleError builds a RuleError from a rejection code and detail context.
func NewRuleError(code RejectionCode, detail string) RuleError {
	return RuleError{Code: int(code), Message: code.String(), Detail: detail}
}
