// Package core binds CSV text to typed records and back.
//
// This package is the heart of csvbind, containing all binding logic
// independent of any transport or storage. It can be used by web handlers,
// the directory importer, or tests without modification.
//
// # Architecture
//
//   - Tokenizer: [Split] turns one line into fields; quotes protect separators.
//   - Registries: [Registry] caches one converter or validator per distinct
//     (type, parameters) key and is shared by every schema of a process.
//   - Schemas: [BuildSchema] resolves a [SchemaDef] into an immutable [Schema];
//     a [Catalog] holds schemas by name.
//   - Engine: [Engine] reads a header, binds each data row and hands records
//     to a [RowHandler]; [Engine.WriteFile] serializes records.
//   - Batches: [BatchDispatcher] regroups records for bulk sinks.
//
// # Declaring a schema
//
// Columns are bound through accessor closures instead of reflection:
//
//	catalog.MustRegister(core.SchemaDef{
//	    Name:      "people",
//	    Separator: "|",
//	    New:       core.New[Person](),
//	    Columns: []core.ColumnDef{
//	        {Name: "id", Mandatory: true, Converter: core.K("integer"),
//	            Accessor: core.Field(func(p *Person) *int { return &p.ID })},
//	        {Name: "born", Converter: core.K("date", "format", "yyyy-MM-dd"),
//	            Accessor: core.Field(func(p *Person) *time.Time { return &p.Born })},
//	    },
//	})
//
// Header names are matched to columns by name; unknown headers are ignored
// and column order in the file is free. Order only affects writing.
//
// # Errors
//
// Rows failing one or more columns become [RowError] values and are
// returned alongside the records. Once more than Options.MaxErrors rows have
// failed the parse stops with [ErrorsExceededError]. A [ConfigurationError]
// means the schema or engine setup cannot work and is never per-row.
// [MapError] turns any of these into a user-facing message with a code.
package core
