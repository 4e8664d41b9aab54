package adjudicate

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridianhealth/claims-cli/internal/model"
)

// BatchResult is the outcome of one claim within a batch run. A non-nil Err
// means the claim's transaction failed and the claim is unresolved, which is
// distinct from business rejections recorded in Errors.
type BatchResult struct {
	Code   string            `json:"code"`
	Errors []model.RuleError `json:"errors,omitempty"`
	Err    error             `json:"-"`
}

// BatchOp is a per-claim operation run by a batch.
type BatchOp func(ctx context.Context, code string) ([]model.RuleError, error)

// RunBatch applies op to each claim code sequentially. Each claim runs in its
// own transaction, so one claim's failure never rolls back its siblings;
// cancellation only takes effect between claims, never mid-claim.
func RunBatch(ctx context.Context, codes []string, claimsPerSecond float64, op BatchOp) []BatchResult {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if claimsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(claimsPerSecond), 1)
	}

	results := make([]BatchResult, 0, len(codes))
	for _, code := range codes {
		if err := limiter.Wait(ctx); err != nil {
			zap.L().Warn("batch: cancelled", zap.Int("remaining", len(codes)-len(results)))
			break
		}

		errs, err := op(ctx, code)
		results = append(results, BatchResult{Code: code, Errors: errs, Err: err})
		if err != nil {
			zap.L().Error("batch: claim unresolved", zap.String("claim", code), zap.Error(err))
		}
	}
	return results
}

// SubmitBatch submits each claim in codes.
func (e *Engine) SubmitBatch(ctx context.Context, codes []string, claimsPerSecond float64) []BatchResult {
	return RunBatch(ctx, codes, claimsPerSecond, e.Submit)
}

// ProcessBatch processes each claim in codes under one audit user.
func (e *Engine) ProcessBatch(ctx context.Context, codes []string, claimsPerSecond float64, auditUserID int) []BatchResult {
	return RunBatch(ctx, codes, claimsPerSecond, func(ctx context.Context, code string) ([]model.RuleError, error) {
		return e.Process(ctx, code, auditUserID)
	})
}
