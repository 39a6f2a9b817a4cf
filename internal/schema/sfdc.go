package schema

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/csvbind/internal/core"
)

// SfdcCustomer is one row of a Salesforce account export.
type SfdcCustomer struct {
	AccountID    string
	AccountName  string
	LastActivity *time.Time
	Type         string
}

// SfdcCustomersDef declares the "sfdc_customers" schema.
func SfdcCustomersDef() core.SchemaDef {
	type T = SfdcCustomer
	return core.SchemaDef{
		Name:      "sfdc_customers",
		Separator: ",",
		New:       core.New[T](),
		Columns: []core.ColumnDef{
			{Name: "account_id_casesafe", Order: 1, Mandatory: true,
				Validators: []core.Key{core.K("regex", "pattern", "[a-zA-Z0-9]{18}")},
				Accessor:   core.Field(func(c *T) *string { return &c.AccountID })},
			{Name: "account_name", Order: 2, Mandatory: true,
				Accessor: core.Field(func(c *T) *string { return &c.AccountName })},
			{Name: "last_activity", Order: 3, Converter: date(usDate),
				Accessor: core.NullableField(func(c *T) **time.Time { return &c.LastActivity })},
			{Name: "type", Order: 4,
				Converter: core.K("enum", "values", "Customer,Prospect,Partner,Other", "ignoreCase", "true"),
				Accessor:  core.Field(func(c *T) *string { return &c.Type })},
		},
	}
}

// SfdcPriceBookEntry is one row of a Salesforce price book export.
type SfdcPriceBookEntry struct {
	PriceBookName string
	ListPrice     pgtype.Numeric
	ProductName   string
	ProductCode   string
	ProductID     string
}

// SfdcPriceBookDef declares the "sfdc_price_book" schema.
func SfdcPriceBookDef() core.SchemaDef {
	type T = SfdcPriceBookEntry
	return core.SchemaDef{
		Name:      "sfdc_price_book",
		Separator: ",",
		New:       core.New[T](),
		Columns: []core.ColumnDef{
			{Name: "price_book_name", Order: 1, Mandatory: true,
				Accessor: core.Field(func(p *T) *string { return &p.PriceBookName })},
			{Name: "product_code", Order: 2, Mandatory: true,
				Accessor: core.Field(func(p *T) *string { return &p.ProductCode })},
			{Name: "product_name", Order: 3,
				Accessor: core.Field(func(p *T) *string { return &p.ProductName })},
			{Name: "list_price", Order: 4, Mandatory: true, Converter: numeric,
				Accessor: core.Field(func(p *T) *pgtype.Numeric { return &p.ListPrice })},
			{Name: "product_id_casesafe", Order: 5,
				Accessor: core.Field(func(p *T) *string { return &p.ProductID })},
		},
	}
}
