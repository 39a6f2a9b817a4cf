package sink

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/csvbind/internal/core"
)

// Copier is the part of pgx.Conn, pgx.Tx and pgxpool.Pool used for COPY.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Postgres bulk-loads batches with the COPY protocol. The target table must
// exist and have one column per schema column, named alike.
type Postgres struct {
	copier  Copier
	table   pgx.Identifier
	columns []*core.ColumnSpec
	names   []string
	rows    atomic.Int64
}

// NewPostgres creates a COPY sink for schema into table. A dotted table name
// ("staging.people") is split into schema and table parts.
func NewPostgres(copier Copier, table string, schema *core.Schema) *Postgres {
	return &Postgres{
		copier:  copier,
		table:   pgx.Identifier(strings.Split(table, ".")),
		columns: schema.OrderedColumns(),
		names:   schema.ColumnNames(),
	}
}

// PostgresOpener opens a Postgres sink per schema, using the schema name as
// table name.
func PostgresOpener(copier Copier) Opener {
	return func(_ context.Context, schema *core.Schema) (Sink, error) {
		return NewPostgres(copier, schema.Name(), schema), nil
	}
}

// Write copies batch in one COPY statement.
func (p *Postgres) Write(ctx context.Context, batch []any) error {
	rows := make([][]any, 0, len(batch))
	for _, rec := range batch {
		row, err := rowValues(p.columns, rec)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	n, err := p.copier.CopyFrom(ctx, p.table, p.names, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", p.table.Sanitize(), err)
	}
	p.rows.Add(n)
	return nil
}

// Rows returns the number of rows copied so far.
func (p *Postgres) Rows() int64 { return p.rows.Load() }
