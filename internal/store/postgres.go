package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridianhealth/claims-cli/internal/db"
	"github.com/meridianhealth/claims-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const claimColumns = `id, code, insuree_id, facility_id, facility_level, facility_care_type,
	status, feedback_status, review_status, category, visit_type,
	date_from, date_to, date_claimed, rejection_reason,
	claimed, approved, remunerated, valuated,
	audit_user_id, process_stamp, created_at, updated_at`

const (
	sqlGetClaim = `SELECT ` + claimColumns + ` FROM claims WHERE code = $1`

	sqlGetClaimLines = `SELECT l.id, l.claim_id, l.kind, l.qty_provided, l.qty_approved,
		l.price_asked, l.price_adjusted, l.price_approved, l.price_valuated,
		l.status, l.rejection_reason, l.validity_to,
		l.product_id, l.policy_id, l.limitation_type, l.limitation_value, l.price_origin, l.ceiling_exclusion,
		l.deductable_amount, l.exceed_ceiling_amount, l.exceed_ceiling_amount_category, l.remunerated_amount,
		i.id, i.code, i.name, i.price, i.care_type, i.patient_category, i.frequency, i.validity_to,
		s.id, s.code, s.name, s.price, s.care_type, s.category, s.package_type, s.patient_category, s.frequency, s.validity_to
	FROM claim_lines l
	LEFT JOIN items i ON l.kind = 'item' AND i.id = l.catalog_id
	LEFT JOIN services s ON l.kind = 'service' AND s.id = l.catalog_id
	WHERE l.claim_id = $1
	ORDER BY l.id`

	sqlUpdateClaim = `UPDATE claims SET
		status = $1, feedback_status = $2, review_status = $3, category = $4,
		rejection_reason = $5, approved = $6, remunerated = $7, valuated = $8,
		audit_user_id = $9, process_stamp = $10, updated_at = $11
	WHERE id = $12`

	sqlUpdateLine = `UPDATE claim_lines SET
		status = $1, rejection_reason = $2, qty_approved = $3,
		price_adjusted = $4, price_valuated = $5,
		product_id = $6, policy_id = $7, limitation_type = $8, limitation_value = $9,
		price_origin = $10, ceiling_exclusion = $11,
		deductable_amount = $12, exceed_ceiling_amount = $13,
		exceed_ceiling_amount_category = $14, remunerated_amount = $15
	WHERE id = $16`

	sqlInsertLedger = `INSERT INTO ledger_entries
		(id, claim_id, policy_id, insuree_id,
		 ded_g, ded_ip, ded_op, rem_g, rem_ip, rem_op,
		 rem_consultation, rem_surgery, rem_delivery, rem_hospitalization, rem_antenatal,
		 hospital, audit_user_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest adjudication paths.
var preparedStatements = map[string]string{
	"get_claim":       sqlGetClaim,
	"get_claim_lines": sqlGetClaimLines,
	"update_claim":    sqlUpdateClaim,
	"update_line":     sqlUpdateLine,
	"insert_ledger":   sqlInsertLedger,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems needing direct
// query access (bulk pricelist imports).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

type txKey struct{}

// querier is the query surface shared by the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// WithinTx runs fn inside one transaction. Nested calls join the outer
// transaction rather than opening a second one.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS insurees (
	id          TEXT PRIMARY KEY,
	chf_id      TEXT NOT NULL UNIQUE,
	family_id   TEXT NOT NULL,
	gender      TEXT NOT NULL,
	birth_date  DATE NOT NULL,
	validity_to TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_insurees_family ON insurees(family_id);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	code        TEXT NOT NULL UNIQUE,
	data        JSONB NOT NULL,
	validity_to TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS policies (
	id             TEXT PRIMARY KEY,
	product_id     TEXT NOT NULL REFERENCES products(id),
	family_id      TEXT NOT NULL,
	stage          TEXT NOT NULL DEFAULT 'N',
	effective_date DATE NOT NULL,
	expiry_date    DATE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policies_family ON policies(family_id);

CREATE TABLE IF NOT EXISTS items (
	id               TEXT PRIMARY KEY,
	code             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	price            DOUBLE PRECISION NOT NULL,
	care_type        TEXT NOT NULL DEFAULT 'B',
	patient_category INTEGER NOT NULL DEFAULT 0,
	frequency        INTEGER NOT NULL DEFAULT 0,
	validity_to      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS services (
	id               TEXT PRIMARY KEY,
	code             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	price            DOUBLE PRECISION NOT NULL,
	care_type        TEXT NOT NULL DEFAULT 'B',
	category         TEXT,
	package_type     TEXT NOT NULL DEFAULT 'S',
	patient_category INTEGER NOT NULL DEFAULT 0,
	frequency        INTEGER NOT NULL DEFAULT 0,
	validity_to      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS package_components (
	service_id TEXT NOT NULL REFERENCES services(id),
	kind       TEXT NOT NULL,
	catalog_id TEXT NOT NULL,
	qty        DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (service_id, kind, catalog_id)
);

CREATE TABLE IF NOT EXISTS coverage_terms (
	id                      TEXT PRIMARY KEY,
	product_id              TEXT NOT NULL REFERENCES products(id),
	kind                    TEXT NOT NULL,
	catalog_id              TEXT NOT NULL,
	limitation_type         TEXT NOT NULL DEFAULT 'C',
	limit_adult_o           DOUBLE PRECISION NOT NULL DEFAULT 100,
	limit_adult_e           DOUBLE PRECISION NOT NULL DEFAULT 100,
	limit_adult_r           DOUBLE PRECISION NOT NULL DEFAULT 100,
	limit_child_o           DOUBLE PRECISION NOT NULL DEFAULT 100,
	limit_child_e           DOUBLE PRECISION NOT NULL DEFAULT 100,
	limit_child_r           DOUBLE PRECISION NOT NULL DEFAULT 100,
	price_origin            TEXT NOT NULL DEFAULT 'P',
	waiting_months_adult    INTEGER NOT NULL DEFAULT 0,
	waiting_months_child    INTEGER NOT NULL DEFAULT 0,
	max_provisions_adult    INTEGER,
	max_provisions_child    INTEGER,
	ceiling_exclusion_adult TEXT NOT NULL DEFAULT 'N',
	ceiling_exclusion_child TEXT NOT NULL DEFAULT 'N',
	validity_to             TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_coverage_terms_lookup ON coverage_terms(product_id, kind, catalog_id);

CREATE TABLE IF NOT EXISTS pricelist_details (
	id             TEXT PRIMARY KEY,
	facility_id    TEXT NOT NULL,
	kind           TEXT NOT NULL,
	catalog_id     TEXT NOT NULL,
	price          DOUBLE PRECISION NOT NULL,
	price_overrule DOUBLE PRECISION,
	valid_from     DATE NOT NULL,
	valid_to       DATE,
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
	date_from          DATE,
	date_to            DATE,
	date_claimed       DATE NOT NULL,
	rejection_reason   INTEGER NOT NULL DEFAULT 0,
	claimed            DOUBLE PRECISION NOT NULL DEFAULT 0,
	approved           DOUBLE PRECISION,
	remunerated        DOUBLE PRECISION,
	valuated           DOUBLE PRECISION,
	audit_user_id      INTEGER NOT NULL DEFAULT 0,
	process_stamp      TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
CREATE INDEX IF NOT EXISTS idx_claims_insuree ON claims(insuree_id);
CREATE INDEX IF NOT EXISTS idx_claims_facility ON claims(facility_id);

CREATE TABLE IF NOT EXISTS claim_lines (
	id                             TEXT PRIMARY KEY,
	claim_id                       TEXT NOT NULL REFERENCES claims(id),
	kind                           TEXT NOT NULL,
	catalog_id                     TEXT NOT NULL,
	qty_provided                   DOUBLE PRECISION NOT NULL,
	qty_approved                   DOUBLE PRECISION,
	price_asked                    DOUBLE PRECISION NOT NULL,
	price_adjusted                 DOUBLE PRECISION,
	price_approved                 DOUBLE PRECISION,
	price_valuated                 DOUBLE PRECISION,
	status                         INTEGER NOT NULL DEFAULT 2,
	rejection_reason               INTEGER NOT NULL DEFAULT 0,
	validity_to                    TIMESTAMPTZ,
	product_id                     TEXT,
	policy_id                      TEXT,
	limitation_type                TEXT,
	limitation_value               DOUBLE PRECISION,
	price_origin                   TEXT,
	ceiling_exclusion              TEXT NOT NULL DEFAULT 'N',
	deductable_amount              DOUBLE PRECISION NOT NULL DEFAULT 0,
	exceed_ceiling_amount          DOUBLE PRECISION NOT NULL DEFAULT 0,
	exceed_ceiling_amount_category DOUBLE PRECISION NOT NULL DEFAULT 0,
	remunerated_amount             DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_claim_lines_claim ON claim_lines(claim_id);
CREATE INDEX IF NOT EXISTS idx_claim_lines_policy ON claim_lines(policy_id, kind, catalog_id);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id                  TEXT PRIMARY KEY,
	claim_id            TEXT NOT NULL REFERENCES claims(id),
	policy_id           TEXT NOT NULL REFERENCES policies(id),
	insuree_id          TEXT NOT NULL REFERENCES insurees(id),
	ded_g               DOUBLE PRECISION NOT NULL DEFAULT 0,
	ded_ip              DOUBLE PRECISION NOT NULL DEFAULT 0,
	ded_op              DOUBLE PRECISION NOT NULL DEFAULT 0,
	rem_g               DOUBLE PRECISION NOT NULL DEFAULT 0,
	rem_ip              DOUBLE PRECISION NOT NULL DEFAULT 0,
	rem_op              DOUBLE PRECISION NOT NULL DEFAULT 0,
	rem_consultation    DOUBLE PRECISION NOT NULL DEFAULT 0,
	rem_surgery         DOUBLE PRECISION NOT NULL DEFAULT 0,
	rem_delivery        DOUBLE PRECISION NOT NULL DEFAULT 0,
	rem_hospitalization DOUBLE PRECISION NOT NULL DEFAULT 0,
	rem_antenatal       DOUBLE PRECISION NOT NULL DEFAULT 0,
	hospital            BOOLEAN NOT NULL DEFAULT false,
	audit_user_id       INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	archived_at         TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ledger_claim ON ledger_entries(claim_id);
CREATE INDEX IF NOT EXISTS idx_ledger_policy ON ledger_entries(policy_id) WHERE archived_at IS NULL;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetClaim(ctx context.Context, code string) (*model.Claim, error) {
	q := s.q(ctx)

	var c model.Claim
	var category, visitType *string
	err := q.QueryRow(ctx, sqlGetClaim, code).Scan(
		&c.ID, &c.Code, &c.InsureeID, &c.FacilityID, &c.Level, &c.CareType,
		&c.Status, &c.Feedback, &c.Review, &category, &visitType,
		&c.DateFrom, &c.DateTo, &c.DateClaimed, &c.RejectionReason,
		&c.Claimed, &c.Approved, &c.Remunerated, &c.Valuated,
		&c.AuditUserID, &c.ProcessStamp, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get claim %s", code)
	}
	if category != nil {
		c.Category = model.ClaimCategory(*category)
	}
	if visitType != nil {
		c.VisitType = model.VisitType(*visitType)
	}

	lines, err := s.claimLines(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Lines = lines
	return &c, nil
}

func (s *PostgresStore) claimLines(ctx context.Context, claimID string) ([]*model.ClaimLine, error) {
	rows, err := s.q(ctx).Query(ctx, sqlGetClaimLines, claimID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get claim lines %s", claimID)
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
			return nil, eris.Wrap(err, "postgres: scan claim line")
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
	return lines, eris.Wrap(rows.Err(), "postgres: claim lines iterate")
}

func (s *PostgresStore) ListClaims(ctx context.Context, filter ClaimFilter) ([]model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != 0 {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, int(filter.Status))
		argIdx++
	}
	if filter.FacilityID != "" {
		query += fmt.Sprintf(` AND facility_id = $%d`, argIdx)
		args = append(args, filter.FacilityID)
		argIdx++
	}
	query += ` ORDER BY date_claimed, code`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list claims")
	}
	defer rows.Close()

	var claims []model.Claim
	for rows.Next() {
		var c model.Claim
		var category, visitType *string
		if err := rows.Scan(
			&c.ID, &c.Code, &c.InsureeID, &c.FacilityID, &c.Level, &c.CareType,
			&c.Status, &c.Feedback, &c.Review, &category, &visitType,
			&c.DateFrom, &c.DateTo, &c.DateClaimed, &c.RejectionReason,
			&c.Claimed, &c.Approved, &c.Remunerated, &c.Valuated,
			&c.AuditUserID, &c.ProcessStamp, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan claim")
		}
		if category != nil {
			c.Category = model.ClaimCategory(*category)
		}
		if visitType != nil {
			c.VisitType = model.VisitType(*visitType)
		}
		claims = append(claims, c)
	}
	return claims, eris.Wrap(rows.Err(), "postgres: list claims iterate")
}

func (s *PostgresStore) UpdateClaim(ctx context.Context, claim *model.Claim) error {
	tag, err := s.q(ctx).Exec(ctx, sqlUpdateClaim,
		int(claim.Status), int(claim.Feedback), int(claim.Review), nullString(string(claim.Category)),
		int(claim.RejectionReason), claim.Approved, claim.Remunerated, claim.Valuated,
		claim.AuditUserID, claim.ProcessStamp, time.Now().UTC(), claim.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update claim %s", claim.Code)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("claim not found: %s", claim.Code)
	}
	return nil
}

func (s *PostgresStore) UpdateLine(ctx context.Context, line *model.ClaimLine) error {
	tag, err := s.q(ctx).Exec(ctx, sqlUpdateLine,
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
		return eris.Wrapf(err, "postgres: update line %s", line.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("claim line not found: %s", line.ID)
	}
	return nil
}

func (s *PostgresStore) GetInsuree(ctx context.Context, insureeID string) (*model.Insuree, error) {
	var i model.Insuree
	err := s.q(ctx).QueryRow(ctx,
		`SELECT id, chf_id, family_id, gender, birth_date, validity_to FROM insurees WHERE id = $1`,
		insureeID,
	).Scan(&i.ID, &i.CHFID, &i.FamilyID, &i.Gender, &i.BirthDate, &i.ValidityTo)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get insuree %s", insureeID)
	}
	return &i, nil
}

func (s *PostgresStore) PoliciesCovering(ctx context.Context, insureeID string, from, to time.Time) ([]model.Policy, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT p.id, p.product_id, p.family_id, p.stage, p.effective_date, p.expiry_date
		 FROM policies p
		 JOIN insurees i ON i.family_id = p.family_id
		 WHERE i.id = $1 AND p.effective_date <= $3 AND p.expiry_date >= $2
		 ORDER BY p.effective_date`,
		insureeID, from, to,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: policies covering %s", insureeID)
	}
	defer rows.Close()

	var policies []model.Policy
	for rows.Next() {
		var p model.Policy
		if err := rows.Scan(&p.ID, &p.ProductID, &p.FamilyID, &p.Stage, &p.Effective, &p.Expiry); err != nil {
			return nil, eris.Wrap(err, "postgres: scan policy")
		}
		policies = append(policies, p)
	}
	return policies, eris.Wrap(rows.Err(), "postgres: policies iterate")
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	var data []byte
	var validityTo *time.Time
	err := s.q(ctx).QueryRow(ctx,
		`SELECT data, validity_to FROM products WHERE id = $1`,
		productID,
	).Scan(&data, &validityTo)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get product %s", productID)
	}

	var p model.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal product %s", productID)
	}
	p.ID = productID
	p.ValidityTo = validityTo
	return &p, nil
}

func (s *PostgresStore) PolicyMemberCount(ctx context.Context, policyID string, at time.Time) (int, error) {
	var count int
	err := s.q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM insurees i
		 JOIN policies p ON p.family_id = i.family_id
		 WHERE p.id = $1 AND (i.validity_to IS NULL OR i.validity_to > $2)`,
		policyID, at,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: member count %s", policyID)
}

func (s *PostgresStore) FindCoverageCandidates(ctx context.Context, q CandidateQuery) ([]model.CoverageCandidate, error) {
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
	WHERE p.id = ANY($1) AND ct.kind = $2 AND ct.catalog_id = $3
	  AND (ct.validity_to IS NULL OR ct.validity_to > $4)
	ORDER BY ct.limitation_type, ct.%s DESC`, limitCol, waitCol, provCol, limitCol)

	rows, err := s.q(ctx).Query(ctx, query, q.PolicyIDs, string(q.Kind), q.CatalogID, q.TargetDate)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find coverage candidates")
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
			return nil, eris.Wrap(err, "postgres: scan coverage candidate")
		}
		cc.ProvisionsUsed = int(used)
		candidates = append(candidates, cc)
	}
	return candidates, eris.Wrap(rows.Err(), "postgres: coverage candidates iterate")
}

func (s *PostgresStore) CatalogIDByCode(ctx context.Context, kind model.LineKind, code string) (string, error) {
	table := "items"
	if kind == model.KindService {
		table = "services"
	}
	var id string
	err := s.q(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE code = $1`, table), code,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: catalog id for %s %s", kind, code)
	}
	return id, nil
}

func (s *PostgresStore) PricelistDetail(ctx context.Context, facilityID string, kind model.LineKind, catalogID string, at time.Time) (*model.PricelistDetail, error) {
	var d model.PricelistDetail
	err := s.q(ctx).QueryRow(ctx,
		`SELECT id, facility_id, kind, catalog_id, price, price_overrule, valid_from, valid_to
		 FROM pricelist_details
		 WHERE facility_id = $1 AND kind = $2 AND catalog_id = $3
		   AND valid_from <= $4 AND (valid_to IS NULL OR valid_to >= $4)
		 ORDER BY valid_from DESC LIMIT 1`,
		facilityID, string(kind), catalogID, at,
	).Scan(&d.ID, &d.FacilityID, &d.Kind, &d.CatalogID, &d.Price, &d.Override, &d.ValidFrom, &d.ValidTo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: pricelist detail")
	}
	return &d, nil
}

func (s *PostgresStore) UpsertPricelistDetails(ctx context.Context, details []model.PricelistDetail) (int64, error) {
	rows := make([][]any, 0, len(details))
	for _, d := range details {
		id := d.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{id, d.FacilityID, string(d.Kind), d.CatalogID, d.Price, d.Override, d.ValidFrom, d.ValidTo})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "pricelist_details",
		Columns:      []string{"id", "facility_id", "kind", "catalog_id", "price", "price_overrule", "valid_from", "valid_to"},
		ConflictKeys: []string{"facility_id", "kind", "catalog_id", "valid_from"},
		UpdateCols:   []string{"price", "price_overrule", "valid_to"},
	}, rows)
}

func (s *PostgresStore) PackageComposition(ctx context.Context, serviceID string) ([]model.ComponentQty, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT kind, catalog_id, qty FROM package_components WHERE service_id = $1 ORDER BY kind, catalog_id`,
		serviceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: package composition %s", serviceID)
	}
	defer rows.Close()

	var components []model.ComponentQty
	for rows.Next() {
		var c model.ComponentQty
		if err := rows.Scan(&c.Kind, &c.CatalogID, &c.Qty); err != nil {
			return nil, eris.Wrap(err, "postgres: scan package component")
		}
		components = append(components, c)
	}
	return components, eris.Wrap(rows.Err(), "postgres: package components iterate")
}

func (s *PostgresStore) FrequencyConflict(ctx context.Context, insureeID string, kind model.LineKind, catalogID string, target time.Time, days int, excludeClaimID string) (bool, error) {
	since := target.AddDate(0, 0, -days)
	var found bool
	err := s.q(ctx).QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM claim_lines l
			JOIN claims c ON c.id = l.claim_id
			WHERE c.insuree_id = $1 AND l.kind = $2 AND l.catalog_id = $3
			  AND c.id <> $4 AND l.rejection_reason = 0 AND c.status > 2
			  AND COALESCE(c.date_to, c.date_from, c.date_claimed) > $5
			  AND COALESCE(c.date_to, c.date_from, c.date_claimed) <= $6
		)`,
		insureeID, string(kind), catalogID, excludeClaimID, since, target,
	).Scan(&found)
	return found, eris.Wrap(err, "postgres: frequency conflict")
}

func (s *PostgresStore) ClaimCategoryCount(ctx context.Context, insureeID, policyID string, cat model.ClaimCategory, from, to time.Time, excludeClaimID string) (int, error) {
	var count int
	err := s.q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM claims c
		 WHERE c.insuree_id = $1 AND c.category = $2 AND c.id <> $3
		   AND c.status IN (4, 8, 16)
		   AND COALESCE(c.date_to, c.date_from, c.date_claimed) BETWEEN $4 AND $5
		   AND EXISTS (SELECT 1 FROM claim_lines l WHERE l.claim_id = c.id AND l.policy_id = $6)`,
		insureeID, string(cat), excludeClaimID, from, to, policyID,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: claim category count")
}

func dedColumn(scope model.LimitScope) string {
	switch scope {
	case model.ScopeInPatient:
		return "ded_ip"
	case model.ScopeOutPatient:
		return "ded_op"
	default:
		return "ded_g"
	}
}

func remColumn(scope model.LimitScope) string {
	switch scope {
	case model.ScopeInPatient:
		return "rem_ip"
	case model.ScopeOutPatient:
		return "rem_op"
	default:
		return "rem_g"
	}
}

func (s *PostgresStore) sumLedger(ctx context.Context, column, policyID, insureeID string, scope ConsumptionScope) (float64, error) {
	query := fmt.Sprintf(
		`SELECT COALESCE(SUM(%s), 0) FROM ledger_entries WHERE policy_id = $1 AND archived_at IS NULL`,
		column,
	)
	args := []any{policyID}
	if scope == ScopeInsuree {
		query += ` AND insuree_id = $2`
		args = append(args, insureeID)
	}

	var sum float64
	err := s.q(ctx).QueryRow(ctx, query, args...).Scan(&sum)
	return sum, eris.Wrapf(err, "postgres: sum ledger %s", column)
}

func (s *PostgresStore) DeductibleConsumed(ctx context.Context, policyID, insureeID string, scope ConsumptionScope, limitScope model.LimitScope) (float64, error) {
	return s.sumLedger(ctx, dedColumn(limitScope), policyID, insureeID, scope)
}

func (s *PostgresStore) CeilingConsumed(ctx context.Context, policyID, insureeID string, scope ConsumptionScope, limitScope model.LimitScope) (float64, error) {
	return s.sumLedger(ctx, remColumn(limitScope), policyID, insureeID, scope)
}

func (s *PostgresStore) CategoryConsumed(ctx context.Context, policyID string, cat model.ClaimCategory) (float64, error) {
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

func (s *PostgresStore) ArchiveLedger(ctx context.Context, claimID string) error {
	_, err := s.q(ctx).Exec(ctx,
		`UPDATE ledger_entries SET archived_at = now() WHERE claim_id = $1 AND archived_at IS NULL`,
		claimID,
	)
	return eris.Wrapf(err, "postgres: archive ledger %s", claimID)
}

func (s *PostgresStore) DeleteLedger(ctx context.Context, claimID string) error {
	_, err := s.q(ctx).Exec(ctx,
		`DELETE FROM ledger_entries WHERE claim_id = $1`,
		claimID,
	)
	return eris.Wrapf(err, "postgres: delete ledger %s", claimID)
}

func (s *PostgresStore) CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.q(ctx).Exec(ctx, sqlInsertLedger,
		entry.ID, entry.ClaimID, entry.PolicyID, entry.InsureeID,
		entry.DedG, entry.DedIP, entry.DedOP, entry.RemG, entry.RemIP, entry.RemOP,
		entry.RemConsultation, entry.RemSurgery, entry.RemDelivery,
		entry.RemHospitalization, entry.RemAntenatal,
		entry.Hospital, entry.AuditUserID, entry.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: create ledger entry for claim %s", entry.ClaimID)
}

func (s *PostgresStore) Seed(ctx context.Context, fx Fixtures) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)

		for _, i := range fx.Insurees {
			if _, err := q.Exec(ctx,
				`INSERT INTO insurees (id, chf_id, family_id, gender, birth_date, validity_to)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO UPDATE SET family_id = $3, gender = $4, birth_date = $5, validity_to = $6`,
				i.ID, i.CHFID, i.FamilyID, string(i.Gender), i.BirthDate, i.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "postgres: seed insuree %s", i.CHFID)
			}
		}

		for _, p := range fx.Products {
			data, err := json.Marshal(p)
			if err != nil {
				return eris.Wrapf(err, "postgres: marshal product %s", p.Code)
			}
			if _, err := q.Exec(ctx,
				`INSERT INTO products (id, code, data, validity_to) VALUES ($1, $2, $3, $4)
				 ON CONFLICT (id) DO UPDATE SET code = $2, data = $3, validity_to = $4`,
				p.ID, p.Code, data, p.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "postgres: seed product %s", p.Code)
			}
		}

		for _, p := range fx.Policies {
			if _, err := q.Exec(ctx,
				`INSERT INTO policies (id, product_id, family_id, stage, effective_date, expiry_date)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO UPDATE SET product_id = $2, family_id = $3, stage = $4, effective_date = $5, expiry_date = $6`,
				p.ID, p.ProductID, p.FamilyID, string(p.Stage), p.Effective, p.Expiry,
			); err != nil {
				return eris.Wrapf(err, "postgres: seed policy %s", p.ID)
			}
		}

		for _, i := range fx.Items {
			if _, err := q.Exec(ctx,
				`INSERT INTO items (id, code, name, price, care_type, patient_category, frequency, validity_to)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT (id) DO UPDATE SET name = $3, price = $4, care_type = $5, patient_category = $6, frequency = $7, validity_to = $8`,
				i.ID, i.Code, i.Name, i.Price, string(i.CareType), int(i.PatCat), i.Frequency, i.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "postgres: seed item %s", i.Code)
			}
		}

		for _, sv := range fx.Services {
			if _, err := q.Exec(ctx,
				`INSERT INTO services (id, code, name, price, care_type, category, package_type, patient_category, frequency, validity_to)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 ON CONFLICT (id) DO UPDATE SET name = $3, price = $4, care_type = $5, category = $6, package_type = $7, patient_category = $8, frequency = $9, validity_to = $10`,
				sv.ID, sv.Code, sv.Name, sv.Price, string(sv.CareType), nullString(string(sv.Category)),
				packageTypeOrSingle(sv.PackType), int(sv.PatCat), sv.Frequency, sv.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "postgres: seed service %s", sv.Code)
			}
		}

		for _, pkg := range fx.Packages {
			for _, comp := range pkg.Components {
				if _, err := q.Exec(ctx,
					`INSERT INTO package_components (service_id, kind, catalog_id, qty) VALUES ($1, $2, $3, $4)
					 ON CONFLICT (service_id, kind, catalog_id) DO UPDATE SET qty = $4`,
					pkg.ServiceID, string(comp.Kind), comp.CatalogID, comp.Qty,
				); err != nil {
					return eris.Wrapf(err, "postgres: seed package component %s", pkg.ServiceID)
				}
			}
		}

		for _, t := range fx.CoverageTerms {
			id := t.ID
			if id == "" {
				id = uuid.New().String()
			}
			if _, err := q.Exec(ctx,
				`INSERT INTO coverage_terms
				 (id, product_id, kind, catalog_id, limitation_type,
				  limit_adult_o, limit_adult_e, limit_adult_r, limit_child_o, limit_child_e, limit_child_r,
				  price_origin, waiting_months_adult, waiting_months_child,
				  max_provisions_adult, max_provisions_child,
				  ceiling_exclusion_adult, ceiling_exclusion_child, validity_to)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
				 ON CONFLICT (id) DO NOTHING`,
				id, t.ProductID, string(t.Kind), t.CatalogID, string(t.LimitationType),
				t.LimitAdultO, t.LimitAdultE, t.LimitAdultR, t.LimitChildO, t.LimitChildE, t.LimitChildR,
				string(t.PriceOrigin), t.WaitingMonthsAdult, t.WaitingMonthsChild,
				t.MaxProvisionsAdult, t.MaxProvisionsChild,
				exclusionOrNone(t.ExclusionAdult), exclusionOrNone(t.ExclusionChild), t.ValidityTo,
			); err != nil {
				return eris.Wrapf(err, "postgres: seed coverage term %s/%s", t.ProductID, t.CatalogID)
			}
		}

		for _, d := range fx.Pricelists {
			id := d.ID
			if id == "" {
				id = uuid.New().String()
			}
			if _, err := q.Exec(ctx,
				`INSERT INTO pricelist_details (id, facility_id, kind, catalog_id, price, price_overrule, valid_from, valid_to)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT (facility_id, kind, catalog_id, valid_from) DO UPDATE SET price = $5, price_overrule = $6, valid_to = $8`,
				id, d.FacilityID, string(d.Kind), d.CatalogID, d.Price, d.Override, d.ValidFrom, d.ValidTo,
			); err != nil {
				return eris.Wrapf(err, "postgres: seed pricelist detail %s", d.CatalogID)
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

func (s *PostgresStore) insertClaim(ctx context.Context, c *model.Claim) error {
	q := s.q(ctx)
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := q.Exec(ctx,
		`INSERT INTO claims
		 (id, code, insuree_id, facility_id, facility_level, facility_care_type,
		  status, feedback_status, review_status, category, visit_type,
		  date_from, date_to, date_claimed, rejection_reason,
		  claimed, approved, remunerated, valuated, audit_user_id, process_stamp, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		c.ID, c.Code, c.InsureeID, c.FacilityID, string(c.Level), string(c.CareType),
		int(c.Status), int(c.Feedback), int(c.Review), nullString(string(c.Category)), nullString(string(c.VisitType)),
		c.DateFrom, c.DateTo, c.DateClaimed, int(c.RejectionReason),
		c.Claimed, c.Approved, c.Remunerated, c.Valuated, c.AuditUserID, c.ProcessStamp, now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert claim %s", c.Code)
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
		if _, err := q.Exec(ctx,
			`INSERT INTO claim_lines
			 (id, claim_id, kind, catalog_id, qty_provided, qty_approved,
			  price_asked, price_adjusted, price_approved, price_valuated,
			  status, rejection_reason, validity_to,
			  product_id, policy_id, limitation_type, limitation_value, price_origin, ceiling_exclusion,
			  deductable_amount, exceed_ceiling_amount, exceed_ceiling_amount_category, remunerated_amount)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
			l.ID, c.ID, string(l.Kind), catalogID, l.QtyProvided, l.QtyApproved,
			l.PriceAsked, l.PriceAdjusted, l.PriceApproved, l.PriceValuated,
			int(l.Status), int(l.RejectionReason), l.ValidityTo,
			nullString(l.ProductID), nullString(l.PolicyID),
			nullString(string(l.LimitationType)), l.LimitationValue,
			nullString(string(l.PriceOrigin)), exclusionOrNone(l.CeilingExclusion),
			l.DeductableAmount, l.ExceedCeilingAmount, l.ExceedCeilingCategory, l.RemuneratedAmount,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert claim line %s", l.ID)
		}
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func packageTypeOrSingle(p model.PackageType) string {
	if p == "" {
		return string(model.PackageSingle)
	}
	return string(p)
}

func exclusionOrNone(e model.CeilingExclusion) string {
	if e == "" {
		return string(model.ExclusionNone)
	}
	return string(e)
}
