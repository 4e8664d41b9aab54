package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridianhealth/claims-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS insurees (
	id          TEXT PRIMARY KEY,
	chf_id      TEXT NOT NULL UNIQUE,
	family_id   TEXT NOT NULL,
	gender      TEXT NOT NULL,
	birth_date  DATETIME NOT NULL,
	validity_to DATETIME
);

CREATE INDEX IF NOT EXISTS idx_insurees_family ON insurees(family_id);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	code        TEXT NOT NULL UNIQUE,
	data        TEXT NOT NULL,
	validity_to DATETIME
);

CREATE TABLE IF NOT EXISTS policies (
	id             TEXT PRIMARY KEY,
	product_id     TEXT NOT NULL REFERENCES products(id),
	family_id      TEXT NOT NULL,
	stage          TEXT NOT NULL DEFAULT 'N',
	effective_date DATETIME NOT NULL,
	expiry_date    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policies_family ON policies(family_id);

CREATE TABLE IF NOT EXISTS items (
	id               TEXT PRIMARY KEY,
	code             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	price            REAL NOT NULL,
	care_type        TEXT NOT NULL DEFAULT 'B',
	patient_category INTEGER NOT NULL DEFAULT 0,
	frequency        INTEGER NOT NULL DEFAULT 0,
	validity_to      DATETIME
);

CREATE TABLE IF NOT EXISTS services (
	id               TEXT PRIMARY KEY,
	code             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	price            REAL NOT NULL,
	care_type        TEXT NOT NULL DEFAULT 'B',
	category         TEXT,
	package_type     TEXT NOT NULL DEFAULT 'S',
	patient_category INTEGER NOT NULL DEFAULT 0,
	frequency        INTEGER NOT NULL DEFAULT 0,
	validity_to      DATETIME
);

CREATE TABLE IF NOT EXISTS package_components (
	service_id TEXT NOT NULL REFERENCES services(id),
	kind       TEXT NOT NULL,
	catalog_id TEXT NOT NULL,
	qty        REAL NOT NULL,
	PRIMARY KEY (service_id, kind, catalog_id)
);

CREATE TABLE IF NOT EXISTS coverage_terms (
	id                      TEXT PRIMARY KEY,
	product_id              TEXT NOT NULL REFERENCES products(id),
	kind                    TEXT NOT NULL,
	catalog_id              TEXT NOT NULL,
	limitation_type         TEXT NOT NULL DEFAULT 'C',
	limit_adult_o           REAL NOT NULL DEFAULT 100,
	limit_adult_e           REAL NOT NULL DEFAULT 100,
	limit_adult_r           REAL NOT NULL DEFAULT 100,
	limit_child_o           REAL NOT NULL DEFAULT 100,
	limit_child_e           REAL NOT NULL DEFAULT 100,
	limit_child_r           REAL NOT NULL DEFAULT 100,
	price_origin            TEXT NOT NULL DEFAULT 'P',
	waiting_months_adult    INTEGER NOT NULL DEFAULT 0,
	waiting_months_child    INTEGER NOT NULL DEFAULT 0,
	max_provisions_adult    INTEGER,
	max_provisions_child    INTEGER,
	ceiling_exclusion_adult TEXT NOT NULL DEFAULT 'N',
	ceiling_exclusion_child TEXT NOT NULL DEFAULT 'N',
	validity_to             DATETIME
);

CREATE INDEX IF NOT EXISTS idx_coverage_terms_lookup ON coverage_terms(product_id, kind, catalog_id);

CREATE TABLE IF NOT EXISTS pricelist_details (
	id             TEXT PRIMARY KEY,
	facility_id    TEXT NOT NULL,
	kind           TEXT NOT NULL,
	catalog_id     TEXT NOT NULL,
	price          REAL NOT NULL,
	price_overrule REAL,
	valid_from     DATETIME NOT NULL,
	valid_to       DATETIME,
	UNIQUE (facility_id, kind, catalog_id, valid_from)
);

CREATE INDEX IF NOT EXISTS idx_pricelist_lookup ON pricelist_details(facility_id, kind, catalog_id);

CREATE TABLE IF NOT EXISTS claims (
	id                 TEXT PRIMARY KEY,
	code               TEXT NOT NULL UNIQUE,
	insuree_id         TEXT NOT NULL REFERENCES insurees(id),
	facility_id        TEXT NOT NULL,
	facility_level     TEXT NOT NULL DEFAULT 'D',
	facility_care_type TEXT NOT NULL DEFAULT 'B',
	status             INTEGER NOT NULL DEFAULT 2,
	feedback_status    INTEGER NOT NULL DEFAULT 1,
	review_status      INTEGER NOT NULL DEFAULT 1,
	category           TEXT,
	visit_type         TEXT,
	date_from          DATETIME,
	date_to            DATETIME,
	date_claimed       DATETIME NOT NULL,
	rejection_reason   INTEGER NOT NULL DEFAULT 0,
	claimed            REAL NOT NULL DEFAULT 0,
	approved           REAL,
	remunerated        REAL,
	valuated           REAL,
	audit_user_id      INTEGER NOT NULL DEFAULT 0,
	process_stamp      DATETIME,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
CREATE INDEX IF NOT EXISTS idx_claims_insuree ON claims(insuree_id);
CREATE INDEX IF NOT EXISTS idx_claims_facility ON claims(facility_id);

CREATE TABLE IF NOT EXISTS claim_lines (
	id                             TEXT PRIMARY KEY,
	claim_id                       TEXT NOT NULL REFERENCES claims(id),
	kind                           TEXT NOT NULL,
	catalog_id                     TEXT NOT NULL,
	qty_provided                   REAL NOT NULL,
	qty_approved                   REAL,
	price_asked                    REAL NOT NULL,
	price_adjusted                 REAL,
	price_approved                 REAL,
	price_valuated                 REAL,
	status                         INTEGER NOT NULL DEFAULT 2,
	rejection_reason               INTEGER NOT NULL DEFAULT 0,
	validity_to                    DATETIME,
	product_id                     TEXT,
	policy_id                      TEXT,
	limitation_type                TEXT,
	limitation_value               REAL,
	price_origin                   TEXT,
	ceiling_exclusion              TEXT NOT NULL DEFAULT 'N',
	deductable_amount              REAL NOT NULL DEFAULT 0,
	exceed_ceiling_amount          REAL NOT NULL DEFAULT 0,
	exceed_ceiling_amount_category REAL NOT NULL DEFAULT 0,
	remunerated_amount             REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_claim_lines_claim ON claim_lines(claim_id);
CREATE INDEX IF NOT EXISTS idx_claim_lines_policy ON claim_lines(policy_id, kind, catalog_id);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id                  TEXT PRIMARY KEY,
	claim_id            TEXT NOT NULL REFERENCES claims(id),
	policy_id           TEXT NOT NULL REFERENCES policies(id),
	insuree_id          TEXT NOT NULL REFERENCES insurees(id),
	ded_g               REAL NOT NULL DEFAULT 0,
	ded_ip              REAL NOT NULL DEFAULT 0,
	ded_op              REAL NOT NULL DEFAULT 0,
	rem_g               REAL NOT NULL DEFAULT 0,
	rem_ip              REAL NOT NULL DEFAULT 0,
	rem_op              REAL NOT NULL DEFAULT 0,
	rem_consultation    REAL NOT NULL DEFAULT 0,
	rem_surgery         REAL NOT NULL DEFAULT 0,
	rem_delivery        REAL NOT NULL DEFAULT 0,
	rem_hospitalization REAL NOT NULL DEFAULT 0,
	rem_antenatal       REAL NOT NULL DEFAULT 0,
	hospital            INTEGER NOT NULL DEFAULT 0,
	audit_user_id       INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	archived_at         DATETIME
);

CREATE INDEX IF NOT EXISTS idx_ledger_claim ON ledger_entries(claim_id);
CREATE INDEX IF NOT EXISTS idx_ledger_policy ON ledger_entries(policy_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTxKey struct{}

// sqlQuerier is the query surface shared by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) q(ctx context.Context) sqlQuerier {
	if tx, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithinTx runs fn inside one transaction. Nested calls join the outer
// transaction rather than opening a second one.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, sqliteTxKey{}, tx)); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

const sqliteClaimColumns = `id, code, insuree_id, facility_id, facility_level, facility_care_type,
	status, feedback_status, review_status, category, visit_type,
	date_from, date_to, date_claimed, rejection_reason,
	claimed, approved, remunerated, valuated,
	audit_user_id, process_stamp, created_at, updated_at`

func (s *SQLiteStore) GetClaim(ctx context.Context, code string) (*model.Claim, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+sqliteClaimColumns+` FROM claims WHERE code = ?`, code)

	c, err := scanSQLiteClaim(row.Scan)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get claim %s", code)
	}

	lines, err := s.claimLines(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Lines = lines
	return c, nil
}

func scanSQLiteClaim(scan func(dest ...any) error) (*model.Claim, error) {
	var c model.Claim
	var category, visitType *string
	err := scan(
		&c.ID, &c.Code, &c.InsureeID, &c.FacilityID, &c.Level, &c.CareType,
		&c.Status, &c.Feedback, &c.Review, &category, &visitType,
		&c.DateFrom, &c.DateTo, &c.DateClaimed, &c.RejectionReason,
		&c.Claimed, &c.Approved, &c.Remunerated, &c.Valuated,
		&c.AuditUserID, &c.ProcessStamp, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if category != nil {
		c.Category = model.ClaimCategory(*category)
	}
	if visitType != nil {
		c.VisitType = model.VisitType(*visitType)
	}
	return &c, nil
}

func (s *SQLiteStore) claimLines(ctx context.Context, claimID string) ([]*model.ClaimLine, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT l.id, l.claim_id, l.kind, l.qty_provided, l.qty_approved,
			l.price_asked, l.price_adjusted, l.price_approved, l.price_valuated,
			l.status, l.rejection_reason, l.validity_to,
			l.product_id, l.policy_id, l.limitation_type, l.limitation_value, l.price_origin, l.ceiling_exclusion,
			l.deductable_amount, l.exceed_ceiling_amount, l.exceed_ceiling_amount_category, l.remunerated_amount,
			i.id, i.code, i.name, i.price, i.care_type, i.patient_category, i.frequency, i.validity_to,
			s.id, s.code, s.name, s.price, s.care_type, s.category, s.package_type, s.patient_category, s.frequency, s.validity_to
		FROM claim_lines l
		LEFT JOIN items i ON l.kind = 'item' AND i.id = l.catalog_id
		LEFT JOIN services s ON l.kind = 'service' AND s.id = l.catalog_id
		WHERE l.claim_id = ?
		ORDER BY l.id`,
		claimID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get claim lines %s", claimID)
	}
	defer rows.Close()

	var lines []*model.ClaimLine
	for rows.Next() {
		var l model.ClaimLine
		var productID, policyID *string
		var limType, origin, exclusion *string

		var itemID, itemCode, itemName *string
		var itemPrice *float64
		var itemCare *string
		var itemPatCat, itemFreq *int
		var itemValidTo *time.Time

		var svcID, svcCode, svcName *string
		var svcPrice *float64
		var svcCare, svcCat, svcPack *string
		var svcPatCat, svcFreq *int
		var svcValidTo *time.Time

		if err := rows.Scan(
			&l.ID, &l.ClaimID, &l.Kind, &l.QtyProvided, &l.QtyApproved,
			&l.PriceAsked, &l.PriceAdjusted, &l.PriceApproved, &l.PriceValuated,
			&l.Status, &l.RejectionReason, &l.ValidityTo,
			&productID, &policyID, &limType, &l.LimitationValue, &origin, &exclusion,
			&l.DeductableAmount, &l.ExceedCeilingAmount, &l.ExceedCeilingCategory, &l.RemuneratedAmount,
			&itemID, &itemCode, &itemName, &itemPrice, &itemCare, &itemPatCat, &itemFreq, &itemValidTo,
			&svcID, &svcCode, &svcName, &svcPrice, &svcCare, &svcCat, &svcPack, &svcPatCat, &svcFreq, &svcValidTo,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan claim line")
		}

		if productID != nil {
			l.ProductID = *productID
		}
		if policyID != nil {
			l.PolicyID = *policyID
		}
		if limType != nil {
			l.LimitationType = model.LimitationType(*limType)
		}
		if origin != nil {
			l.PriceOrigin = model.PriceOrigin(*origin)
		}
		if exclusion != nil {
			l.CeilingExclusion = model.CeilingExclusion(*exclusion)
		}

		if itemID != nil {
			l.Item = &model.Item{
				ID:         *itemID,
				Code:       *itemCode,
				Name:       *itemName,
				Price:      *itemPrice,
				CareType:   model.CareType(*itemCare),
				PatCat:     uint8(*itemPatCat),
				Frequency:  *itemFreq,
				ValidityTo: itemValidTo,
			}
		}
		if svcID != nil {
			svc := &model.Service{
				ID:         *svcID,
				Code:       *svcCode,
				Name:       *svcName,
				Price:      *svcPrice,
				CareType:   model.CareType(*svcCare),
				PatCat:     uint8(*svcPatCat),
				Frequency:  *svcFreq,
				ValidityTo: svcValidTo,
			}
			if svcCat != nil {
				svc.Category = model.ClaimCategory(*svcCat)
			}
			if svcPack != nil {
				svc.PackType = model.PackageType(*svcPack)
			}
			l.Service = svc
		}
		lines = append(lines, &l)
	}
	return lines, eris.Wrap(rows.Err(), "sqlite: claim lines iterate")
}

func (s *SQLiteStore) ListClaims(ctx context.Context, filter ClaimFilter) ([]model.Claim, error) {
	query := `SELECT ` + sqliteClaimColumns + ` FROM claims WHERE true`
	args := []any{}

	if filter.Status != 0 {
		query += ` AND status = ?`
		args = append(args, int(filter.Status))
	}
	if filter.FacilityID != "" {
		query += ` AND facility_id = ?`
		args = append(args, filter.FacilityID)
	}
	query += ` ORDER BY date_claimed, code`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list claims")
	}
	defer rows.Close()

	var claims []model.Claim
	for rows.Next() {
		c, err := scanSQLiteClaim(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan claim")
		}
		claims = append(claims, *c)
	}
	return claims, eris.Wrap(rows.Err(), "sqlite: list claims iterate")
}

func (s *SQLiteStore) UpdateClaim(ctx context.Context, claim *model.Claim) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE claims SET
			status = ?, feedback_status = ?, review_status = ?, category = ?,
			rejection_reason = ?, approved = ?, remunerated = ?, valuated = ?,
			audit_user_id = ?, process_stamp = ?, updated_at = ?
		WHERE id = ?`,
		int(claim.Status), int(claim.Feedback), int(claim.Review), nullString(string(claim.Category)),
		int(claim.RejectionReason), claim.Approved, claim.Remunerated, claim.Valuated,
		claim.AuditUserID, claim.ProcessStamp, time.Now().UTC(), claim.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update claim %s", claim.Code)
	}
	return checkRowsAffected(res, "claim", claim.Code)
}

func (s *SQLiteStore) UpdateLine(ctx context.Context, line *model.ClaimLine) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE claim_lines SET
			status = ?, rejection_reason = ?, qty_approved = ?,
			price_adjusted = ?, price_valuated = ?,
			product_id = ?, policy_id = ?, limitation_type = ?, limitation_value = ?,
			price_origin = ?, ceiling_exclusion = ?,
			deductable_amount = ?, exceed_ceiling_amount = ?,
			exceed_ceiling_amount_category = ?, remunerated_amount = ?
		WHERE id = ?`,
		int(line.Status), int(line.RejectionReason), line.QtyApproved,
		line.PriceAdjusted, line.PriceValuated,
		nullString(line.ProductID), nullString(line.PolicyID),
		nullString(string(line.LimitationType)), line.LimitationValue,
		nullString(string(line.PriceOrigin)), string(line.CeilingExclusion),
		line.DeductableAmount, line.ExceedCeilingAmount,
		line.ExceedCeilingCategory, line.RemuneratedAmount,
		line.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update line %s", line.ID)
	}
	return checkRowsAffected(res, "claim_line", line.ID)
}

func (s *SQLiteStore) GetInsuree(ctx context.Context, insureeID string) (*model.Insuree, error) {
	var i model.Insuree
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, chf_id, family_id, gender, birth_date, validity_to FROM insurees WHERE id = ?`,
		insureeID,
	).Scan(&i.ID, &i.CHFID, &i.FamilyID, &i.Gender, &i.BirthDate, &i.ValidityTo)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get insuree %s", insureeID)
	}
	return &i, nil
}

func (s *SQLiteStore) PoliciesCovering(ctx context.Context, insureeID string, from, to time.Time) ([]model.Policy, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT p.id, p.product_id, p.family_id, p.stage, p.effective_date, p.expiry_date
		 FROM policies p
		 JOIN insurees i ON i.family_id = p.family_id
		 WHERE i.id = ? AND p.effective_date <= ? AND p.expiry_date >= ?
		 ORDER BY p.effective_date`,
		insureeID, to, from,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: policies covering %s", insureeID)
	}
	defer rows.Close()

	var policies []model.Policy
	for rows.Next() {
		var p model.Policy
		if err := rows.Scan(&p.ID, &p.ProductID, &p.FamilyID, &p.Stage, &p.Effective, &p.Expiry); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan policy")
		}
		policies = append(policies, p)
	}
	return policies, eris.Wrap(rows.Err(), "sqlite: policies iterate")
}

func (s *SQLiteStore) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	var data []byte
	var validityTo *time.Time
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT data, validity_to FROM products WHERE id = ?`,
		productID,
	).Scan(&data, &validityTo)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %s", productID)
	}

	var p model.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal product %s", productID)
	}
	p.ID = productID
	p.ValidityTo = validityTo
	return &p, nil
}

func (s *SQLiteStore) PolicyMemberCount(ctx context.Context, policyID string, at time.Time) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM insurees i
		 JOIN policies p ON p.family_id = i.family_id
		 WHERE p.id = ? AND (i.validity_to IS NULL OR i.validity_to > ?)`,
		policyID, at,
	).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: member count %s", policyID)
}

func (s *SQLiteStore) FindCoverageCandidates(ctx context.Context, q CandidateQuery) ([]model.CoverageCandidate, error) {
	if len(q.PolicyIDs) == 0 {
		return nil, nil
	}

	adultCol, childCol := "limit_adult_o", "limit_child_o"
	waitCol, provCol := "waiting_months_adult", "max_provisions_adult"
	switch q.VisitType {
	case model.VisitEmergency:
		adultCol, childCol = "limit_adult_e", "limit_child_e"
	case model.VisitReferral:
		adultCol, childCol = "limit_adult_r", "limit_child_r"
	}
	limitCol := adultCol
	if !q.Adult {
		limitCol = childCol
		waitCol, provCol = "waiting_months_child", "max_provisions_child"
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.PolicyIDs)), ", ")
	query := fmt.Sprintf(`SELECT ct.product_id, p.id, p.effective_date, p.stage,
		ct.limitation_type, ct.%s, ct.price_origin, ct.%s, ct.%s,
		COALESCE((
			SELECT SUM(l.qty_provided) FROM claim_lines l
			JOIN claims c ON c.id = l.claim_id
			WHERE l.policy_id = p.id AND l.kind = ct.kind AND l.catalog_id = ct.catalog_id
			  AND l.rejection_reason = 0 AND c.status IN (4, 8, 16)
		), 0),
		ct.ceiling_exclusion_adult, ct.ceiling_exclusion_child
	FROM coverage_terms ct
	JOIN policies p ON p.product_id = ct.product_id
	WHERE p.id IN (%s) AND ct.kind = ? AND ct.catalog_id = ?
	  AND (ct.validity_to IS NULL OR ct.validity_to > ?)
	ORDER BY ct.limitation_type, ct.%s DESC`, limitCol, waitCol, provCol, placeholders, limitCol)

	args := make([]any, 0, len(q.PolicyIDs)+3)
	for _, id := range q.PolicyIDs {
		args = append(args, id)
	}
	args = append(args, string(q.Kind), q.CatalogID, q.TargetDate)

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find coverage candidates")
	}
	defer rows.Close()

	var candidates []model.CoverageCandidate
	for rows.Next() {
		var cc model.CoverageCandidate
		var used float64
		if err := rows.Scan(
			&cc.ProductID, &cc.PolicyID, &cc.PolicyEffective, &cc.PolicyStage,
			&cc.LimitationType, &cc.LimitationValue, &cc.PriceOrigin,
			&cc.WaitingMonths, &cc.MaxProvisions, &used,
			&cc.ExclusionAdult, &cc.ExclusionChild,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan coverage candidate")
		}
		cc.ProvisionsUsed = int(used)
		candidates = append(candidates, cc)
	}
	return candidates, eris.Wrap(rows.Err(), "sqlite: coverage candidates iterate")
}

func (s *SQLiteStore) CatalogIDByCode(ctx context.Context, kind model.LineKind, code string) (string, error) {
	table := "items"
	if kind == model.KindService {
		table = "services"
	}
	var id string
	err := s.q(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE code = ?`, table), code,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: catalog id for %s %s", kind, code)
	}
	return id, nil
}

func (s *SQLiteStore) PricelistDetail(ctx context.Context, facilityID string, kind model.LineKind, catalogID string, at time.Time) (*model.PricelistDetail, error) {
	var d model.PricelistDetail
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, facility_id, kind, catalog_id, price, price_overrule, valid_from, valid_to
		 FROM pricelist_details
		 WHERE facility_id = ? AND kind = ? AND catalog_id = ?
		   AND valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?)
		 ORDER BY valid_from DESC LIMIT 1`,
		facilityID, string(kind), catalogID, at, at,
	).Scan(&d.ID, &d.FacilityID, &d.Kind, &d.CatalogID, &d.Price, &d.Override, &d.ValidFrom, &d.ValidTo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: pricelist detail")
	}
	return &d, nil
}

func (s *SQLiteStore) UpsertPricelistDetails(ctx context.Context, details []model.PricelistDetail) (int64, error) {
	var n int64
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		for _, d := range details {
			id := d.ID
			if id == "" {
				id = uuid.New().String()
			}
			res, err := q.ExecContext(ctx,
				`INSERT INTO pricelist_details (id, facility_id, kind, catalog_id, price, price_overrule, valid_from, valid_to)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (facility_id, kind, catalog_id, valid_from)
				 DO UPDATE SET price = excluded.price, price_overrule = excluded.price_overrule, valid_to = excluded.valid_to`,
				id, d.FacilityID, string(d.Kind), d.CatalogID, d.Price, d.Override, d.ValidFrom, d.ValidTo,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert pricelist detail %s", d.CatalogID)
			}
			affected, _ := res.RowsAffected()
			n += affected
		}
		return nil
	})
	return n, err
}

func (s *SQLiteStore) PackageComposition(ctx context.Context, serviceID string) ([]model.ComponentQty, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT kind, catalog_id, qty FROM package_components WHERE service_id = ? ORDER BY kind, catalog_id`,
		serviceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: package composition %s", serviceID)
	}
	defer rows.Close()

	var components []model.ComponentQty
	for rows.Next() {
		var c model.ComponentQty
		if err := rows.Scan(&c.Kind, &c.CatalogID, &c.Qty); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan package component")
		}
		components = append(components, c)
	}
	return components, eris.Wrap(rows.Err(), "sqlite: package components iterate")
}

func (s *SQLiteStore) FrequencyConflict(ctx context.Context, insureeID string, kind model.LineKind, catalogID string, target time.Time, days int, excludeClaimID string) (bool, error) {
	since := target.AddDate(0, 0, -days)
	var count int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM claim_lines l
		 JOIN claims c ON c.id = l.claim_id
		 WHERE c.insuree_id = ? AND l.kind = ? AND l.catalog_id = ?
		   AND c.id <> ? AND l.rejection_reason = 0 AND c.status > 2
		   AND COALESCE(c.date_to, c.date_from, c.date_claimed) > ?
		   AND COALESCE(c.date_to, c.date_from, c.date_claimed) <= ?`,
		insureeID, string(kind), catalogID, excludeClaimID, since, target,
	).Scan(&count)
	return count > 0, eris.Wrap(err, "sqlite: frequency conflict")
}

func (s *SQLiteStore) ClaimCategoryCount(ctx context.Context, insureeID, policyID string, cat model.ClaimCategory, from, to time.Time, excludeClaimID string) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM claims c
		 WHERE c.insuree_id = ? AND c.category = ? AND c.id <> ?
		   AND c.status IN (4, 8, 16)
		   AND COALESCE(c.date_to, c.date_from, c.date_claimed) BETWEEN ? AND ?
		   AND EXISTS (SELECT 1 FROM claim_lines l WHERE l.claim_id = c.id AND l.policy_id = ?)`,
		insureeID, string(cat), excludeClaimID, from, to, policyID,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: claim category count")
}

func (s *SQLiteStore) sumLedger(ctx context.Context, column, policyID, insureeID string, scope ConsumptionScope) (float64, error) {
	query := fmt.Sprintf(
		`SELECT COALESCE(SUM(%s), 0) FROM ledger_entries WHERE policy_id = ? AND archived_at IS NULL`,
		column,
	)
	args := []any{policyID}
	if scope == ScopeInsuree {
		query += ` AND insuree_id = ?`
		args = append(args, insureeID)
	}

	var sum float64
	err := s.q(ctx).QueryRowContext(ctx, query, args...).Scan(&sum)
	return sum, eris.Wrapf(err, "sqlite: sum ledger %s", column)
}

func (s *SQLiteStore) DeductibleConsumed(ctx context.Context, policyID, insureeID string, scope ConsumptionScope, limitScope model.LimitScope) (float64, error) {
	return s.sumLedger(ctx, dedColumn(limitScope), policyID, insureeID, scope)
}

func (s *SQLiteStore) CeilingConsumed(ctx context.Context, policyID, insureeID string, scope ConsumptionScope, limitScope model.LimitScope) (float64, error) {
	return s.sumLedger(ctx, remColumn(limitScope), policyID, insureeID, scope)
}

func (s *SQLiteStore) CategoryConsumed(ctx context.Context, policyID string, cat model.ClaimCategory) (float64, error) {
	var column string
	switch cat {
	case model.CategoryConsultation:
		column = "rem_consultation"
	case model.CategorySurgery:
		column = "rem_surgery"
	case model.CategoryDelivery:
		column = "rem_delivery"
	case model.CategoryHospitalization:
		column = "rem_hospitalization"
	case model.CategoryAntenatal:
		column = "rem_antenatal"
	default:
		return 0, nil
	}
	return s.sumLedger(ctx, column, policyID, "", ScopePolicy)
}

func (s *SQLiteStore) ArchiveLedger(ctx context.Context, claimID string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`UPDATE ledger_entries SET archived_at = datetime('now') WHERE claim_id = ? AND archived_at IS NULL`,
		claimID,
	)
	return eris.Wrapf(err, "sqlite: archive ledger %s", claimID)
}

func (s *SQLiteStore) DeleteLedger(ctx context.Context, claimID string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE claim_id = ?`,
		claimID,
	)
	return eris.Wrapf(err, "sqlite: delete ledger %s", claimID)
}

func (s *SQLiteStore) CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO ledger_entries
		 (id, claim_id, policy_id, insuree_id,
		  ded_g, ded_ip, ded_op, rem_g, rem_ip, rem_op,
		  rem_consultation, rem_surgery, rem_delivery, rem_hospitalization, rem_antenatal,
		  hospital, audit_user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ClaimID, entry.PolicyID, entry.InsureeID,
		entry.DedG, entry.DedIP, entry.DedOP, entry.RemG, entry.RemIP, entry.RemOP,
		entry.RemConsultation, entry.RemSurgery, entry.RemDelivery,
		entry.RemHospitalization, entry.RemAntenatal,
		boolToInt(entry.Hospital), entry.AuditUserID, entry.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: create ledger entry for claim %s", entry.ClaimID)
}

func (s *SQLiteStore) Seed(ctx context.Context, fx Fixtures) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)

		for _, i := range fx.Insurees {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO insurees (id, chf_id, family_id, gender, birth_date, validity_to)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET family_id = excluded.family_id, gender = excluded.gender,
					birth_date = excluded.birth_date, validity_to = excluded.validity_to`,
				i.ID, i.CHFID, i.FamilyID, string(i.Gender), i.BirthDate, i.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed insuree %s", i.CHFID)
			}
		}

		for _, p := range fx.Products {
			data, err := json.Marshal(p)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal product %s", p.Code)
			}
			if _, err := q.ExecContext(ctx,
				`INSERT INTO products (id, code, data, validity_to) VALUES (?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET code = excluded.code, data = excluded.data, validity_to = excluded.validity_to`,
				p.ID, p.Code, string(data), p.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed product %s", p.Code)
			}
		}

		for _, p := range fx.Policies {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO policies (id, product_id, family_id, stage, effective_date, expiry_date)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET product_id = excluded.product_id, family_id = excluded.family_id,
					stage = excluded.stage, effective_date = excluded.effective_date, expiry_date = excluded.expiry_date`,
				p.ID, p.ProductID, p.FamilyID, string(p.Stage), p.Effective, p.Expiry,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed policy %s", p.ID)
			}
		}

		for _, i := range fx.Items {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO items (id, code, name, price, care_type, patient_category, frequency, validity_to)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET name = excluded.name, price = excluded.price,
					care_type = excluded.care_type, patient_category = excluded.patient_category,
					frequency = excluded.frequency, validity_to = excluded.validity_to`,
				i.ID, i.Code, i.Name, i.Price, string(i.CareType), int(i.PatCat), i.Frequency, i.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed item %s", i.Code)
			}
		}

		for _, sv := range fx.Services {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO services (id, code, name, price, care_type, category, package_type, patient_category, frequency, validity_to)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET name = excluded.name, price = excluded.price,
					care_type = excluded.care_type, category = excluded.category, package_type = excluded.package_type,
					patient_category = excluded.patient_category, frequency = excluded.frequency, validity_to = excluded.validity_to`,
				sv.ID, sv.Code, sv.Name, sv.Price, string(sv.CareType), nullString(string(sv.Category)),
				packageTypeOrSingle(sv.PackType), int(sv.PatCat), sv.Frequency, sv.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed service %s", sv.Code)
			}
		}

		for _, pkg := range fx.Packages {
			for _, comp := range pkg.Components {
				if _, err := q.ExecContext(ctx,
					`INSERT INTO package_components (service_id, kind, catalog_id, qty) VALUES (?, ?, ?, ?)
					 ON CONFLICT (service_id, kind, catalog_id) DO UPDATE SET qty = excluded.qty`,
					pkg.ServiceID, string(comp.Kind), comp.CatalogID, comp.Qty,
				); err != nil {
					return eris.Wrapf(err, "sqlite: seed package component %s", pkg.ServiceID)
				}
			}
		}

		for _, t := range fx.CoverageTerms {
			id := t.ID
			if id == "" {
				id = uuid.New().String()
			}
			if _, err := q.ExecContext(ctx,
				`INSERT INTO coverage_terms
				 (id, product_id, kind, catalog_id, limitation_type,
				  limit_adult_o, limit_adult_e, limit_adult_r, limit_child_o, limit_child_e, limit_child_r,
				  price_origin, waiting_months_adult, waiting_months_child,
				  max_provisions_adult, max_provisions_child,
				  ceiling_exclusion_adult, ceiling_exclusion_child, validity_to)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO NOTHING`,
				id, t.ProductID, string(t.Kind), t.CatalogID, string(t.LimitationType),
				t.LimitAdultO, t.LimitAdultE, t.LimitAdultR, t.LimitChildO, t.LimitChildE, t.LimitChildR,
				string(t.PriceOrigin), t.WaitingMonthsAdult, t.WaitingMonthsChild,
				t.MaxProvisionsAdult, t.MaxProvisionsChild,
				exclusionOrNone(t.ExclusionAdult), exclusionOrNone(t.ExclusionChild), t.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed coverage term %s/%s", t.ProductID, t.CatalogID)
			}
		}

		for _, d := range fx.Pricelists {
			id := d.ID
			if id == "" {
				id = uuid.New().String()
			}
			if _, err := q.ExecContext(ctx,
				`INSERT INTO pricelist_details (id, facility_id, kind, catalog_id, price, price_overrule, valid_from, valid_to)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (facility_id, kind, catalog_id, valid_from)
				 DO UPDATE SET price = excluded.price, price_overrule = excluded.price_overrule, valid_to = excluded.valid_to`,
				id, d.FacilityID, string(d.Kind), d.CatalogID, d.Price, d.Override, d.ValidFrom, d.ValidTo,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed pricelist detail %s", d.CatalogID)
			}
		}

		for i := range fx.Claims {
			if err := s.insertClaim(ctx, &fx.Claims[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) insertClaim(ctx context.Context, c *model.Claim) error {
	q := s.q(ctx)
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := q.ExecContext(ctx,
		`INSERT INTO claims
		 (id, code, insuree_id, facility_id, facility_level, facility_care_type,
		  status, feedback_status, review_status, category, visit_type,
		  date_from, date_to, date_claimed, rejection_reason,
		  claimed, approved, remunerated, valuated, audit_user_id, process_stamp, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.InsureeID, c.FacilityID, string(c.Level), string(c.CareType),
		int(c.Status), int(c.Feedback), int(c.Review), nullString(string(c.Category)), nullString(string(c.VisitType)),
		c.DateFrom, c.DateTo, c.DateClaimed, int(c.RejectionReason),
		c.Claimed, c.Approved, c.Remunerated, c.Valuated, c.AuditUserID, c.ProcessStamp, now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert claim %s", c.Code)
	}

	for _, l := range c.Lines {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.ClaimID = c.ID
		catalogID := ""
		if ref := l.Catalog(); ref != nil {
			catalogID = ref.CatalogID()
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO claim_lines
			 (id, claim_id, kind, catalog_id, qty_provided, qty_approved,
			  price_asked, price_adjusted, price_approved, price_valuated,
			  status, rejection_reason, validity_to,
			  product_id, policy_id, limitation_type, limitation_value, price_origin, ceiling_exclusion,
			  deductable_amount, exceed_ceiling_amount, exceed_ceiling_amount_category, remunerated_amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, c.ID, string(l.Kind), catalogID, l.QtyProvided, l.QtyApproved,
			l.PriceAsked, l.PriceAdjusted, l.PriceApproved, l.PriceValuated,
			int(l.Status), int(l.RejectionReason), l.ValidityTo,
			nullString(l.ProductID), nullString(l.PolicyID),
			nullString(string(l.LimitationType)), l.LimitationValue,
			nullString(string(l.PriceOrigin)), exclusionOrNone(l.CeilingExclusion),
			l.DeductableAmount, l.ExceedCeilingAmount, l.ExceedCeilingCategory, l.RemuneratedAmount,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert claim line %s", l.ID)
		}
	}
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
