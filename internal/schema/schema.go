// Package schema declares the built-in report schemas: exports from
// Salesforce, NetSuite and Anrok bound to Go structs.
package schema

import (
	"fmt"

	"github.com/JonMunkholm/csvbind/internal/core"
)

const (
	usDate  = "M/d/yyyy"
	isoDate = "yyyy-MM-dd"
)

// Defs returns the built-in schema declarations.
func Defs() []core.SchemaDef {
	return []core.SchemaDef{
		AnrokTransactionsDef(),
		NsCustomersDef(),
		SfdcCustomersDef(),
		SfdcPriceBookDef(),
	}
}

// Register adds every built-in schema to catalog.
func Register(catalog *core.Catalog) error {
	for _, def := range Defs() {
		if _, err := catalog.Register(def); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return nil
}

func date(format string) core.Key { return core.K("date", "format", format) }

var (
	numeric = core.K("numeric")
	integer = core.K("integer")
	boolean = core.K("boolean")
)
