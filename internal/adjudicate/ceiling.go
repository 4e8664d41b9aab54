package adjudicate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridianhealth/claims-cli/internal/model"
	"github.com/meridianhealth/claims-cli/internal/store"
)

// account holds the unconsumed deductible and ceiling balances resolved for
// one (policy, product) pair at the start of an accumulator run. Balances
// are drawn down line by line within the run.
type account struct {
	deductible    float64
	hasDeductible bool
	dedScope      model.LimitScope

	ceiling    float64
	hasCeiling bool
	ceilScope  model.LimitScope
}

// resolveAccount applies the three-level fallback for both the deductible and
// the ceiling: per-treatment fixed amount (fresh every claim), then
// per-insuree cumulative, then per-policy cumulative with member scaling.
// General terms win over the IP/OP-specific ones at each level.
func (e *Engine) resolveAccount(ctx context.Context, product *model.Product, policyID, insureeID string, hospital bool, at time.Time) (account, error) {
	var acc account

	ded, err := e.resolveTerm(ctx, termQuery{
		treatment: product.DedTreatment,
		insuree:   product.DedInsuree,
		policy:    product.DedPolicy,
		policyID:  policyID,
		insureeID: insureeID,
		hospital:  hospital,
		consumed:  e.store.DeductibleConsumed,
	})
	if err != nil {
		return acc, eris.Wrap(err, "dedrem: resolve deductible")
	}
	if ded != nil {
		acc.hasDeductible = true
		acc.deductible = ded.remaining
		acc.dedScope = ded.scope
	}

	ceil, err := e.resolveTerm(ctx, termQuery{
		treatment: product.CeilTreatment,
		insuree:   product.CeilInsuree,
		policy:    product.CeilPolicy,
		policyID:  policyID,
		insureeID: insureeID,
		hospital:  hospital,
		consumed:  e.store.CeilingConsumed,
		scale: func(ctx context.Context, base float64, scope model.LimitScope) (float64, error) {
			return e.scalePolicyCeiling(ctx, product, policyID, base, scope, at)
		},
	})
	if err != nil {
		return acc, eris.Wrap(err, "dedrem: resolve ceiling")
	}
	if ceil != nil {
		acc.hasCeiling = true
		acc.ceiling = ceil.remaining
		acc.ceilScope = ceil.scope
	}

	return acc, nil
}

type resolvedTerm struct {
	remaining float64
	scope     model.LimitScope
}

type termQuery struct {
	treatment, insuree, policy model.Limit
	policyID, insureeID        string
	hospital                   bool
	consumed                   func(ctx context.Context, policyID, insureeID string, scope store.ConsumptionScope, limitScope model.LimitScope) (float64, error)
	// scale adjusts the policy-level base amount for member count; nil for
	// deductibles, which never scale.
	scale func(ctx context.Context, base float64, scope model.LimitScope) (float64, error)
}

func (e *Engine) resolveTerm(ctx context.Context, q termQuery) (*resolvedTerm, error) {
	// Per-treatment: always fresh, no accumulation.
	if amount, scope := q.treatment.At(q.hospital); amount != nil {
		return &resolvedTerm{remaining: *amount, scope: scope}, nil
	}

	// Per-insuree: subtract what this insuree already consumed on the policy.
	if amount, scope := q.insuree.At(q.hospital); amount != nil {
		used, err := q.consumed(ctx, q.policyID, q.insureeID, store.ScopeInsuree, scope)
		if err != nil {
			return nil, err
		}
		return &resolvedTerm{remaining: clampZero(*amount - used), scope: scope}, nil
	}

	// Per-policy: subtract everyone's consumption; ceilings scale by members.
	if amount, scope := q.policy.At(q.hospital); amount != nil {
		base := *amount
		if q.scale != nil {
			scaled, err := q.scale(ctx, base, scope)
			if err != nil {
				return nil, err
			}
			base = scaled
		}
		used, err := q.consumed(ctx, q.policyID, "", store.ScopePolicy, scope)
		if err != nil {
			return nil, err
		}
		return &resolvedTerm{remaining: clampZero(base - used), scope: scope}, nil
	}

	return nil, nil
}

// scalePolicyCeiling grows a policy-level ceiling once the family exceeds the
// product's member threshold, by a per-extra-member increment capped at an
// absolute ceiling. The general and IP/OP variants scale independently.
func (e *Engine) scalePolicyCeiling(ctx context.Context, product *model.Product, policyID string, base float64, scope model.LimitScope, at time.Time) (float64, error) {
	if product.MemberThreshold <= 0 {
		return base, nil
	}
	members, err := e.store.PolicyMemberCount(ctx, policyID, at)
	if err != nil {
		return 0, err
	}
	extra := members - product.MemberThreshold
	if extra <= 0 {
		return base, nil
	}

	var increment float64
	var ceilCap *float64
	switch scope {
	case model.ScopeInPatient:
		increment, ceilCap = product.ExtraMemberIP, product.MaxCeilPolicyIP
	case model.ScopeOutPatient:
		increment, ceilCap = product.ExtraMemberOP, product.MaxCeilPolicyOP
	default:
		increment, ceilCap = product.ExtraMemberCeil, product.MaxCeilPolicy
	}

	scaled := base + float64(extra)*increment
	if ceilCap != nil && scaled > *ceilCap {
		scaled = *ceilCap
	}
	return scaled, nil
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
