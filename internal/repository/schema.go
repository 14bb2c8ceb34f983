package repository

// Schema definitions for the Tally database.
// Compatible with both SQLite and PostgreSQL.

const schemaCommissionRecords = `
CREATE TABLE IF NOT EXISTS commission_records (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    seller_id TEXT NOT NULL DEFAULT '',
    product_id TEXT NOT NULL,
    rate REAL NOT NULL,
    min_sale_value REAL,
    max_sale_value REAL,
    recipient_type TEXT NOT NULL DEFAULT 'sale_value',
    is_active INTEGER NOT NULL DEFAULT 1,
    is_default_rate INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_commission_records_tenant ON commission_records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_commission_records_key ON commission_records(tenant_id, seller_id, product_id);
CREATE INDEX IF NOT EXISTS idx_commission_records_product ON commission_records(tenant_id, product_id, is_active);
`

const schemaSales = `
CREATE TABLE IF NOT EXISTS sales (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    seller_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    value REAL NOT NULL,
    office_commission REAL NOT NULL DEFAULT 0,
    sold_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sales_tenant ON sales(tenant_id);
CREATE INDEX IF NOT EXISTS idx_sales_seller ON sales(tenant_id, seller_id, sold_at);
CREATE INDEX IF NOT EXISTS idx_sales_product ON sales(tenant_id, seller_id, product_id);
`

const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'warning',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_tenant ON alert_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCommissionRecords,
		schemaSales,
		schemaAlertRules,
	}
}
