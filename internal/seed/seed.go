// Package seed loads YAML fixture bundles and applies them to a store.
package seed

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/meridianhealth/claims-cli/internal/model"
	"github.com/meridianhealth/claims-cli/internal/store"
)

// LoadFixtures reads a fixture bundle from a YAML file.
func LoadFixtures(path string) (*store.Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read fixtures %s", path)
	}

	var fx store.Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, eris.Wrapf(err, "seed: parse fixtures %s", path)
	}

	if err := validate(&fx); err != nil {
		return nil, err
	}
	return &fx, nil
}

// LoadClaims reads just the claims from a YAML file, for submission. The file
// uses the same shape as a fixture bundle; other sections are ignored.
func LoadClaims(path string) ([]model.Claim, error) {
	fx, err := LoadFixtures(path)
	if err != nil {
		return nil, err
	}
	if len(fx.Claims) == 0 {
		return nil, eris.Errorf("seed: no claims in %s", path)
	}
	return fx.Claims, nil
}

// Apply loads the fixture bundle at path and seeds the store with it.
func Apply(ctx context.Context, st store.Store, path string) error {
	fx, err := LoadFixtures(path)
	if err != nil {
		return err
	}

	if err := st.Seed(ctx, *fx); err != nil {
		return err
	}

	zap.L().Info("seed: fixtures applied",
		zap.String("path", path),
		zap.Int("insurees", len(fx.Insurees)),
		zap.Int("products", len(fx.Products)),
		zap.Int("policies", len(fx.Policies)),
		zap.Int("items", len(fx.Items)),
		zap.Int("services", len(fx.Services)),
		zap.Int("coverage_terms", len(fx.CoverageTerms)),
		zap.Int("pricelists", len(fx.Pricelists)),
		zap.Int("claims", len(fx.Claims)))
	return nil
}

func validate(fx *store.Fixtures) error {
	for i, ins := range fx.Insurees {
		if ins.ID == "" || ins.CHFID == "" {
			return eris.Errorf("seed: insuree %d is missing id or chf_id", i)
		}
	}
	for i, p := range fx.Products {
		if p.ID == "" || p.Code == "" {
			return eris.Errorf("seed: product %d is missing id or code", i)
		}
	}
	for i, p := range fx.Policies {
		if p.ID == "" || p.ProductID == "" {
			return eris.Errorf("seed: policy %d is missing id or product_id", i)
		}
		if p.Expiry.Before(p.Effective) {
			return eris.Errorf("seed: policy %s expires before it takes effect", p.ID)
		}
	}
	for i, it := range fx.Items {
		if it.ID == "" || it.Code == "" {
			return eris.Errorf("seed: item %d is missing id or code", i)
		}
	}
	for i, sv := range fx.Services {
		if sv.ID == "" || sv.Code == "" {
			return eris.Errorf("seed: service %d is missing id or code", i)
		}
	}
	for i, ct := range fx.CoverageTerms {
		if ct.ProductID == "" || ct.CatalogID == "" {
			return eris.Errorf("seed: coverage term %d is missing product_id or catalog_id", i)
		}
	}
	for i, c := range fx.Claims {
		if c.Code == "" {
			return eris.Errorf("seed: claim %d is missing code", i)
		}
		if c.InsureeID == "" || c.FacilityID == "" {
			return eris.Errorf("seed: claim %s is missing insuree_id or facility_id", c.Code)
		}
		for j, l := range c.Lines {
			if l.Item == nil && l.Service == nil {
				return eris.Errorf("seed: claim %s line %d names no item or service", c.Code, j)
			}
		}
	}
	return nil
}
