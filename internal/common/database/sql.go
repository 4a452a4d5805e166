// internal/common/database/sql.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"querybot/internal/common/config"
	apperrors "querybot/internal/common/errors"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sampleRowCount is how many rows TableInfo shows per table.
const sampleRowCount = 2

// SQLClient wraps the database questions are answered against.
type SQLClient struct {
	DB            *sql.DB
	Dialect       string
	includeTables []string
	queryTimeout  time.Duration
}

// Column describes one table column.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

// NewSQL opens a pooled connection for the configured driver.
func NewSQL(cfg config.SQLConfig) (*SQLClient, error) {
	db, err := sql.Open(cfg.Driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	client := NewSQLFromDB(db, cfg.Driver, cfg.IncludeTables)
	client.queryTimeout = config.GetDuration(cfg.QueryTimeout)
	return client, nil
}

// NewSQLFromDB wraps an existing handle.
func NewSQLFromDB(db *sql.DB, dialect string, includeTables []string) *SQLClient {
	return &SQLClient{
		DB:            db,
		Dialect:       dialect,
		includeTables: includeTables,
	}
}

// Ping tests the database connection
func (c *SQLClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return apperrors.NewDatabaseConnectionFailedError(err)
	}
	return nil
}

// Close closes the database connection
func (c *SQLClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// NormalizeStatement trims whitespace and trailing semicolons, which several
// drivers reject in single-statement execution.
func NormalizeStatement(query string) string {
	q := strings.TrimSpace(query)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	return q
}

func (c *SQLClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout > 0 {
		return context.WithTimeout(ctx, c.queryTimeout)
	}
	return context.WithCancel(ctx)
}

// Execute runs a statement and materializes every returned row.
func (c *SQLClient) Execute(ctx context.Context, query string) (*Rows, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.DB.QueryContext(ctx, NormalizeStatement(query))
	if err != nil {
		return nil, queryError(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	result, err := scanRows(rows)
	if err != nil {
		return nil, queryError(ctx, err)
	}
	return result, nil
}

func queryError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewQueryTimeoutError(err)
	}
	return apperrors.NewQueryExecutionFailedError(err)
}

func scanRows(rows *sql.Rows) (*Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Rows{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		for i, val := range values {
			if b, ok := val.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Values = append(result.Values, values)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListTables returns user tables in name order, restricted to include_tables when configured.
func (c *SQLClient) ListTables(ctx context.Context) ([]string, error) {
	var query string
	switch c.Dialect {
	case config.DriverPostgres:
		query = `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = 'public'
			ORDER BY table_name`
	case config.DriverMySQL:
		query = `
			SELECT TABLE_NAME
			FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = DATABASE()
			ORDER BY TABLE_NAME`
	case config.DriverSQLite:
		query = `
			SELECT name
			FROM sqlite_master
			WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
			ORDER BY name`
	default:
		return nil, fmt.Errorf("list tables not supported for %s", c.Dialect)
	}

	rows, err := c.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if c.included(name) {
			tables = append(tables, name)
		}
	}
	return tables, rows.Err()
}

func (c *SQLClient) included(table string) bool {
	if len(c.includeTables) == 0 {
		return true
	}
	for _, t := range c.includeTables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

// Columns describes the columns of table in ordinal order.
func (c *SQLClient) Columns(ctx context.Context, table string) ([]Column, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch c.Dialect {
	case config.DriverPostgres:
		rows, err = c.DB.QueryContext(ctx, `
			SELECT column_name, data_type, is_nullable
			FROM information_schema.columns
			WHERE table_name = $1
			ORDER BY ordinal_position`, table)
	case config.DriverMySQL:
		rows, err = c.DB.QueryContext(ctx, `
			SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
			FROM information_schema.COLUMNS
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
			ORDER BY ORDINAL_POSITION`, table)
	case config.DriverSQLite:
		rows, err = c.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", c.QuoteIdent(table)))
	default:
		return nil, fmt.Errorf("schema discovery not supported for %s", c.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []Column
	for rows.Next() {
		if c.Dialect == config.DriverSQLite {
			// cid, name, type, notnull, dflt_value, pk
			var cid, notnull, pk int
			var name, typ string
			var dflt sql.NullString
			if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
				return nil, err
			}
			cols = append(cols, Column{Name: name, Type: typ, Nullable: notnull == 0, PrimaryKey: pk > 0})
			continue
		}

		var name, dataType, isNullable string
		if err := rows.Scan(&name, &dataType, &isNullable); err != nil {
			return nil, err
		}
		cols = append(cols, Column{Name: name, Type: dataType, Nullable: strings.EqualFold(isNullable, "YES")})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, nil
}

// TableInfo renders a CREATE TABLE style description of table followed by sample rows.
func (c *SQLClient) TableInfo(ctx context.Context, table string) (string, error) {
	cols, err := c.Columns(ctx, table)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table)
	for i, col := range cols {
		fmt.Fprintf(&b, "\t%s %s", col.Name, strings.ToUpper(col.Type))
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if col.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if i < len(cols)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")

	sample, err := c.Execute(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", c.QuoteIdent(table), sampleRowCount))
	if err != nil {
		// sample rows are best effort; the structure is what matters for retrieval
		return b.String(), nil
	}

	fmt.Fprintf(&b, "\n\n/*\n%d rows from %s table:\n", sample.Len(), table)
	b.WriteString(strings.Join(sample.Columns, "\t"))
	for _, row := range sample.Values {
		b.WriteString("\n")
		b.WriteString(joinValues(row, "\t"))
	}
	b.WriteString("\n*/")

	return b.String(), nil
}

// Explain asks the database to plan query without running it.
func (c *SQLClient) Explain(ctx context.Context, query string) error {
	prefix := "EXPLAIN "
	if c.Dialect == config.DriverSQLite {
		prefix = "EXPLAIN QUERY PLAN "
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.DB.QueryContext(ctx, prefix+NormalizeStatement(query))
	if err != nil {
		return err
	}
	return rows.Close()
}

// QuoteIdent quotes a table or column name for the client's dialect.
func (c *SQLClient) QuoteIdent(name string) string {
	if c.Dialect == config.DriverMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
