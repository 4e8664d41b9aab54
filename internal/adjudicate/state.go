package adjudicate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridianhealth/claims-cli/internal/model"
)

// Submit runs validation, matching and a non-valuating accumulator pass over
// an entered claim, moving it to CHECKED. The whole sequence runs in one
// transaction.
func (e *Engine) Submit(ctx context.Context, code string) ([]model.RuleError, error) {
	var errs []model.RuleError
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		claim, err := e.store.GetClaim(ctx, code)
		if err != nil {
			return eris.Wrapf(err, "submit: load claim %s", code)
		}
		if claim.Status != model.ClaimStatusEntered {
			return eris.Errorf("submit: claim %s is %s, not entered", code, claim.Status)
		}

		errs, err = e.adjudicate(ctx, claim, e.cfg.EnforceCeilingOnSubmit, false, claim.AuditUserID)
		if err != nil || claim.Status == model.ClaimStatusRejected {
			return err
		}

		claim.Status = model.ClaimStatusChecked
		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return eris.Wrapf(err, "submit: persist claim %s", code)
		}
		e.metrics.ClaimSubmitted()
		return nil
	})
	return errs, err
}

// Process runs the full pipeline with valuation over a checked claim, moving
// it to PROCESSED or VALUATED.
func (e *Engine) Process(ctx context.Context, code string, auditUserID int) ([]model.RuleError, error) {
	var errs []model.RuleError
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		claim, err := e.store.GetClaim(ctx, code)
		if err != nil {
			return eris.Wrapf(err, "process: load claim %s", code)
		}
		if claim.Status != model.ClaimStatusChecked {
			return eris.Errorf("process: claim %s is %s, not checked", code, claim.Status)
		}

		errs, err = e.adjudicate(ctx, claim, true, true, auditUserID)
		return err
	})
	return errs, err
}

// adjudicate chains validation, matching and the accumulator; each stage only
// sees what the previous one let through, and a whole-claim rejection stops
// the chain.
func (e *Engine) adjudicate(ctx context.Context, claim *model.Claim, enforceCeiling, isProcess bool, auditUserID int) ([]model.RuleError, error) {
	policies, err := e.coveringPolicies(ctx, claim)
	if err != nil {
		return nil, err
	}

	errs, err := e.Validate(ctx, claim, enforceCeiling, policies)
	if err != nil || claim.Status == model.ClaimStatusRejected {
		return errs, err
	}

	matchErrs, err := e.AssignProducts(ctx, claim, policies)
	if err != nil {
		return errs, err
	}
	errs = append(errs, matchErrs...)

	dedremErrs, err := e.ProcessDedrem(ctx, claim, auditUserID, isProcess)
	if err != nil {
		return errs, err
	}
	errs = append(errs, dedremErrs...)
	return errs, nil
}

// ReviewVerdict is one line's outcome from a medical-officer review.
type ReviewVerdict struct {
	LineID   string `json:"line_id"`
	Accepted bool   `json:"accepted"`
}

// DeliverReview applies review verdicts to a selected claim. Rejecting every
// line rejects the claim outright and deletes its ledger entries; otherwise
// the accumulator reruns over the surviving lines.
func (e *Engine) DeliverReview(ctx context.Context, code string, verdicts []ReviewVerdict, auditUserID int) ([]model.RuleError, error) {
	var errs []model.RuleError
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		claim, err := e.store.GetClaim(ctx, code)
		if err != nil {
			return eris.Wrapf(err, "review: load claim %s", code)
		}
		if claim.Review != model.ReviewSelected {
			return eris.Errorf("review: claim %s is not selected for review", code)
		}

		rejected := make(map[string]bool, len(verdicts))
		for _, v := range verdicts {
			if !v.Accepted {
				rejected[v.LineID] = true
			}
		}

		remaining := 0
		for _, line := range claim.Lines {
			if rejected[line.ID] {
				line.Reject(model.RejectedByReview)
				if err := e.store.UpdateLine(ctx, line); err != nil {
					return eris.Wrapf(err, "review: persist line %s", line.ID)
				}
			} else if !line.Rejected() {
				remaining++
			}
		}

		claim.Review = model.ReviewDelivered

		if remaining == 0 {
			// Scenario: the review struck out everything. The ledger is
			// removed entirely, not merely zeroed.
			if err := e.store.DeleteLedger(ctx, claim.ID); err != nil {
				return eris.Wrapf(err, "review: delete ledger for claim %s", code)
			}
			claim.Status = model.ClaimStatusRejected
			claim.RejectionReason = model.RejectionInvalidItemOrService
			if err := e.store.UpdateClaim(ctx, claim); err != nil {
				return eris.Wrapf(err, "review: persist claim %s", code)
			}
			e.metrics.ClaimRejected(int(model.RejectionInvalidItemOrService))
			errs = append(errs, model.NewRuleError(model.RejectionInvalidItemOrService, code))
			return nil
		}

		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return eris.Wrapf(err, "review: persist claim %s", code)
		}

		dedremErrs, err := e.ProcessDedrem(ctx, claim, auditUserID, true)
		if err != nil {
			return err
		}
		errs = append(errs, dedremErrs...)
		return nil
	})
	if err == nil {
		zap.L().Info("review delivered", zap.String("claim", code), zap.Int("verdicts", len(verdicts)))
	}
	return errs, err
}

// SelectForReview marks a claim for medical-officer review. Only idle or
// not-selected claims can be picked.
func (e *Engine) SelectForReview(ctx context.Context, code string) error {
	return e.store.WithinTx(ctx, func(ctx context.Context) error {
		claim, err := e.store.GetClaim(ctx, code)
		if err != nil {
			return eris.Wrapf(err, "review: load claim %s", code)
		}
		if claim.Review != model.ReviewIdle && claim.Review != model.ReviewNotSelected {
			return eris.Errorf("review: claim %s already has review state %d", code, claim.Review)
		}
		claim.Review = model.ReviewSelected
		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return eris.Wrapf(err, "review: persist claim %s", code)
		}
		return nil
	})
}

// SelectForFeedback marks a claim for insuree feedback.
func (e *Engine) SelectForFeedback(ctx context.Context, code string) error {
	return e.store.WithinTx(ctx, func(ctx context.Context) error {
		claim, err := e.store.GetClaim(ctx, code)
		if err != nil {
			return eris.Wrapf(err, "feedback: load claim %s", code)
		}
		if claim.Feedback != model.FeedbackIdle && claim.Feedback != model.FeedbackNotSelected {
			return eris.Errorf("feedback: claim %s already has feedback state %d", code, claim.Feedback)
		}
		claim.Feedback = model.FeedbackSelected
		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return eris.Wrapf(err, "feedback: persist claim %s", code)
		}
		return nil
	})
}

// DeliverFeedback moves a claim's feedback sub-machine from SELECTED to
// DELIVERED.
func (e *Engine) DeliverFeedback(ctx context.Context, code string) error {
	return e.store.WithinTx(ctx, func(ctx context.Context) error {
		claim, err := e.store.GetClaim(ctx, code)
		if err != nil {
			return eris.Wrapf(err, "feedback: load claim %s", code)
		}
		if claim.Feedback != model.FeedbackSelected {
			return eris.Errorf("feedback: claim %s is not selected for feedback", code)
		}
		claim.Feedback = model.FeedbackDelivered
		if err := e.store.UpdateClaim(ctx, claim); err != nil {
			return eris.Wrapf(err, "feedback: persist claim %s", code)
		}
		return nil
	})
}
