// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/consortia-finance/tally/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCommission stores a commission record with tenant isolation.
func (r *SQLRepository) SaveCommission(ctx context.Context, tenantID string, rec *domain.CommissionRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO commission_records (
			id, tenant_id, seller_id, product_id, rate,
			min_sale_value, max_sale_value, recipient_type,
			is_active, is_default_rate, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.SellerID, rec.ProductID, rec.Rate,
		rec.MinSaleValue, rec.MaxSaleValue, rec.RecipientType,
		boolToInt(rec.IsActive), boolToInt(rec.IsDefaultRate),
		rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// GetCommission retrieves a commission record by ID with tenant
// isolation, regardless of its active flag.
func (r *SQLRepository) GetCommission(ctx context.Context, tenantID string, id string) (*domain.CommissionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, seller_id, product_id, rate,
			   min_sale_value, max_sale_value, recipient_type,
			   is_active, is_default_rate, created_at, updated_at
		FROM commission_records
		WHERE tenant_id = ? AND id = ?
	`

	rec, err := scanCommission(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListCommissions retrieves commission records matching the filter.
// The filter's scope is explicit: callers state whether soft-deleted
// records are included.
func (r *SQLRepository) ListCommissions(ctx context.Context, tenantID string, filter domain.CommissionFilter) ([]*domain.CommissionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, seller_id, product_id, rate,
			   min_sale_value, max_sale_value, recipient_type,
			   is_active, is_default_rate, created_at, updated_at
		FROM commission_records
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if filter.ProductID != "" {
		query += " AND product_id = ?"
		args = append(args, filter.ProductID)
	}
	if filter.SellerID != "" {
		query += " AND seller_id = ?"
		args = append(args, filter.SellerID)
	}
	if filter.DefaultsOnly {
		query += " AND seller_id = '' AND is_default_rate = 1"
	}
	if filter.Scope == domain.ScopeActive {
		query += " AND is_active = 1"
	}
	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.CommissionRecord
	for rows.Next() {
		rec, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// UpdateCommission overwrites a commission record with tenant isolation.
func (r *SQLRepository) UpdateCommission(ctx context.Context, tenantID string, rec *domain.CommissionRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE commission_records
		SET rate = ?, min_sale_value = ?, max_sale_value = ?,
			recipient_type = ?, is_active = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.Rate, rec.MinSaleValue, rec.MaxSaleValue,
		rec.RecipientType, boolToInt(rec.IsActive), rec.UpdatedAt,
		tenantID, rec.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeactivateCommission soft-deletes a record by setting is_active = 0.
// The row is retained for audit history.
func (r *SQLRepository) DeactivateCommission(ctx context.Context, tenantID string, id string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE commission_records
		SET is_active = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveSale stores a sale with tenant isolation.
func (r *SQLRepository) SaveSale(ctx context.Context, tenantID string, sale *domain.Sale) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO sales (
			id, tenant_id, seller_id, product_id, value,
			office_commission, sold_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		sale.ID, tenantID, sale.SellerID, sale.ProductID, sale.Value,
		sale.OfficeCommission, sale.SoldAt, sale.CreatedAt,
	)
	return err
}

// GetSalesBySeller retrieves a seller's sales since a point in time with
// tenant isolation. productID narrows to one product when set.
func (r *SQLRepository) GetSalesBySeller(ctx context.Context, tenantID string, sellerID string, productID string, since time.Time) ([]*domain.Sale, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, seller_id, product_id, value,
			   office_commission, sold_at, created_at
		FROM sales
		WHERE tenant_id = ? AND seller_id = ? AND sold_at >= ?
	`
	args := []any{tenantID, sellerID, since}

	if productID != "" {
		query += " AND product_id = ?"
		args = append(args, productID)
	}
	query += " ORDER BY sold_at DESC"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(
			&sale.ID, &sale.TenantID, &sale.SellerID, &sale.ProductID,
			&sale.Value, &sale.OfficeCommission, &sale.SoldAt, &sale.CreatedAt,
		); err != nil {
			return nil, err
		}
		sales = append(sales, &sale)
	}

	return sales, rows.Err()
}

// SaveAlertRule stores an alert rule with tenant isolation, upserting
// on (id, tenant_id).
func (r *SQLRepository) SaveAlertRule(ctx context.Context, tenantID string, rule *domain.AlertRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO alert_rules (
			id, tenant_id, name, description, expression, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Expression, rule.Severity, boolToInt(rule.Enabled),
		now, now,
	)
	return err
}

// ListAlertRules retrieves all enabled alert rules for a tenant.
func (r *SQLRepository) ListAlertRules(ctx context.Context, tenantID string) ([]*domain.AlertRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, severity, enabled, created_at, updated_at
		FROM alert_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		var rule domain.AlertRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Severity, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteAlertRule removes an alert rule.
func (r *SQLRepository) DeleteAlertRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM alert_rules WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for scanCommission.
type scanner interface {
	Scan(dest ...any) error
}

func scanCommission(row scanner) (*domain.CommissionRecord, error) {
	var rec domain.CommissionRecord
	var minValue, maxValue sql.NullFloat64
	var active, isDefault int

	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.SellerID, &rec.ProductID, &rec.Rate,
		&minValue, &maxValue, &rec.RecipientType,
		&active, &isDefault, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if minValue.Valid {
		rec.MinSaleValue = &minValue.Float64
	}
	if maxValue.Valid {
		rec.MaxSaleValue = &maxValue.Float64
	}
	rec.IsActive = active == 1
	rec.IsDefaultRate = isDefault == 1

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
