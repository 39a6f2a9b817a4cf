package schema

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/csvbind/internal/core"
)

// NsCustomer is one row of a NetSuite customer export.
type NsCustomer struct {
	SalesforceID   string
	InternalID     int
	Name           string
	CompanyName    string
	Balance        *pgtype.Numeric
	UnbilledOrders *pgtype.Numeric
	OverdueBalance *pgtype.Numeric
	DaysOverdue    *int
}

// NsCustomersDef declares the "ns_customers" schema.
func NsCustomersDef() core.SchemaDef {
	type T = NsCustomer
	return core.SchemaDef{
		Name:      "ns_customers",
		Separator: ",",
		New:       core.New[T](),
		Columns: []core.ColumnDef{
			{Name: "internal_id", Order: 1, Mandatory: true, Converter: integer,
				Accessor: core.Field(func(c *T) *int { return &c.InternalID })},
			{Name: "salesforce_id_io", Order: 2,
				Validators: []core.Key{core.K("size", "minSize", "15", "maxSize", "18")},
				Accessor:   core.Field(func(c *T) *string { return &c.SalesforceID })},
			{Name: "name", Order: 3, Mandatory: true,
				Accessor: core.Field(func(c *T) *string { return &c.Name })},
			{Name: "company_name", Order: 4,
				Accessor: core.Field(func(c *T) *string { return &c.CompanyName })},
			{Name: "balance", Order: 5, Converter: numeric,
				Accessor: core.NullableField(func(c *T) **pgtype.Numeric { return &c.Balance })},
			{Name: "unbilled_orders", Order: 6, Converter: numeric,
				Accessor: core.NullableField(func(c *T) **pgtype.Numeric { return &c.UnbilledOrders })},
			{Name: "overdue_balance", Order: 7, Converter: numeric,
				Accessor: core.NullableField(func(c *T) **pgtype.Numeric { return &c.OverdueBalance })},
			{Name: "days_overdue", Order: 8, Converter: integer,
				Accessor: core.NullableField(func(c *T) **int { return &c.DaysOverdue })},
		},
	}
}
