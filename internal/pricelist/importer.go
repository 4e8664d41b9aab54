package pricelist

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridianhealth/claims-cli/internal/model"
	"github.com/meridianhealth/claims-cli/internal/store"
)

// Importer loads parsed price list rows into the store for one facility.
type Importer struct {
	store store.Store
}

// NewImporter creates an Importer backed by the given store.
func NewImporter(st store.Store) *Importer {
	return &Importer{store: st}
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Upserted int64
	Skipped  []string // catalog codes with no matching item or service
}

// Import parses the workbook at path and upserts its prices for the facility,
// valid from the given date. Rows whose code matches no catalog entity are
// skipped and reported, not fatal.
func (im *Importer) Import(ctx context.Context, path, facilityID string, validFrom time.Time, opts WorkbookOptions) (*ImportResult, error) {
	rows, err := ParseWorkbook(path, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("pricelist: workbook %s has no price rows", path)
	}

	log := zap.L().With(zap.String("facility", facilityID), zap.String("workbook", path))

	res := &ImportResult{}
	details := make([]model.PricelistDetail, 0, len(rows))
	for _, r := range rows {
		catalogID, err := im.store.CatalogIDByCode(ctx, r.Kind, r.Code)
		if err != nil {
			log.Warn("pricelist: unknown catalog code, skipping",
				zap.String("kind", string(r.Kind)), zap.String("code", r.Code))
			res.Skipped = append(res.Skipped, r.Code)
			continue
		}
		details = append(details, model.PricelistDetail{
			FacilityID: facilityID,
			Kind:       r.Kind,
			CatalogID:  catalogID,
			Price:      r.Price,
			Override:   r.Override,
			ValidFrom:  validFrom,
		})
	}
	if len(details) == 0 {
		return nil, eris.New("pricelist: no workbook row matched the catalog")
	}

	n, err := im.store.UpsertPricelistDetails(ctx, details)
	if err != nil {
		return nil, err
	}
	res.Upserted = n

	log.Info("pricelist: import complete",
		zap.Int64("upserted", n), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}
