package models

import "strings"

// Column describes a single column of a table.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
	IsPrimary  bool   `json:"is_primary"`
}

// ForeignKey describes a foreign key edge from a column of this table to a
// column of another table.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// Table describes one table of the live database.
type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// QualifiedName returns schema.name, or just the name when the schema is the
// dialect default.
func (t *Table) QualifiedName() string {
	if t.Schema == "" || t.Schema == "public" || t.Schema == "dbo" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// SchemaDescriptor is an immutable snapshot of the database structure.
// A snapshot is built once per refresh and never mutated; a query session
// holds the pointer it was given for its whole lifetime, so a concurrent
// refresh cannot change the schema mid-session.
type SchemaDescriptor struct {
	Tables []Table `json:"tables"`
}

// NewSchemaDescriptor builds a snapshot from the given tables.
func NewSchemaDescriptor(tables []Table) *SchemaDescriptor {
	return &SchemaDescriptor{Tables: tables}
}

// FindTable returns the table with the given name, matching case-insensitively
// and accepting both bare and schema-qualified names.
func (d *SchemaDescriptor) FindTable(name string) (*Table, bool) {
	lower := strings.ToLower(name)
	for i := range d.Tables {
		t := &d.Tables[i]
		if strings.ToLower(t.Name) == lower || strings.ToLower(t.QualifiedName()) == lower {
			return t, true
		}
		if t.Schema != "" && strings.ToLower(t.Schema+"."+t.Name) == lower {
			return t, true
		}
	}
	return nil, false
}

// HasColumn reports whether any table in the snapshot has the given column.
func (d *SchemaDescriptor) HasColumn(column string) bool {
	lower := strings.ToLower(column)
	for i := range d.Tables {
		for j := range d.Tables[i].Columns {
			if strings.ToLower(d.Tables[i].Columns[j].Name) == lower {
				return true
			}
		}
	}
	return false
}

// TableHasColumn reports whether the named table has the given column.
func (d *SchemaDescriptor) TableHasColumn(table, column string) bool {
	t, ok := d.FindTable(table)
	if !ok {
		return false
	}
	lower := strings.ToLower(column)
	for i := range t.Columns {
		if strings.ToLower(t.Columns[i].Name) == lower {
			return true
		}
	}
	return false
}

// SchemaFragment is a subset of the snapshot judged relevant to one question,
// with the relevance score that ranked it.
type SchemaFragment struct {
	Table Table   `json:"table"`
	Score float64 `json:"score"`
}
