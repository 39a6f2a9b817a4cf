package schema

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/csvbind/internal/core"
)

// AnrokTransaction is one row of an Anrok tax transaction report.
type AnrokTransaction struct {
	TransactionID string
	CustomerID    string
	CustomerName  string
	InvoiceDate   *time.Time
	TaxDate       *time.Time
	Currency      string
	SalesAmount   *pgtype.Numeric
	TaxAmount     *pgtype.Numeric
	InvoiceAmount *pgtype.Numeric
	Void          bool
	CountryCode   string
}

// AnrokTransactionsDef declares the "anrok_transactions" schema.
func AnrokTransactionsDef() core.SchemaDef {
	type T = AnrokTransaction
	return core.SchemaDef{
		Name:      "anrok_transactions",
		Separator: ",",
		New:       core.New[T](),
		Columns: []core.ColumnDef{
			{Name: "Transaction ID", Order: 1, Mandatory: true,
				Accessor: core.Field(func(t *T) *string { return &t.TransactionID })},
			{Name: "Customer ID", Order: 2,
				Accessor: core.Field(func(t *T) *string { return &t.CustomerID })},
			{Name: "Customer name", Order: 3,
				Accessor: core.Field(func(t *T) *string { return &t.CustomerName })},
			{Name: "Invoice date", Order: 4, Converter: date(isoDate),
				Accessor: core.NullableField(func(t *T) **time.Time { return &t.InvoiceDate })},
			{Name: "Tax date", Order: 5, Converter: date(isoDate),
				Accessor: core.NullableField(func(t *T) **time.Time { return &t.TaxDate })},
			{Name: "Transaction currency", Order: 6,
				Validators: []core.Key{core.K("regex", "pattern", "[A-Z]{3}")},
				Accessor:   core.Field(func(t *T) *string { return &t.Currency })},
			{Name: "Sales amount", Order: 7, Converter: numeric,
				Accessor: core.NullableField(func(t *T) **pgtype.Numeric { return &t.SalesAmount })},
			{Name: "Tax amount", Order: 8, Converter: numeric,
				Accessor: core.NullableField(func(t *T) **pgtype.Numeric { return &t.TaxAmount })},
			{Name: "Invoice amount", Order: 9, Converter: numeric,
				Accessor: core.NullableField(func(t *T) **pgtype.Numeric { return &t.InvoiceAmount })},
			{Name: "Void", Order: 10, Converter: boolean,
				Accessor: core.Field(func(t *T) *bool { return &t.Void })},
			{Name: "Customer country code", Order: 11,
				Validators: []core.Key{core.K("size", "minSize", "2", "maxSize", "2")},
				Accessor:   core.Field(func(t *T) *string { return &t.CountryCode })},
		},
	}
}
