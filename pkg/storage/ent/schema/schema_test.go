package schema_test

import (
	"slices"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	sqlschema "entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/presence/pkg/storage/ent/migrate"
	"github.com/papercomputeco/presence/pkg/storage/ent/schema"
)

type column struct {
	Name string
	Type field.Type
}

// declared lists an entity's stored columns. The implicit integer id of
// entities without an id field is left out.
func declared(e ent.Interface) []column {
	var out []column
	for _, f := range e.Fields() {
		d := f.Descriptor()
		name := d.Name
		if d.StorageKey != "" {
			name = d.StorageKey
		}
		out = append(out, column{Name: name, Type: d.Info.Type})
	}
	return out
}

func migrated(t *sqlschema.Table) []column {
	var out []column
	for _, c := range t.Columns {
		if c.Name == "id" && c.Increment {
			continue
		}
		out = append(out, column{Name: c.Name, Type: c.Type})
	}
	return out
}

func tableName(e ent.Interface) string {
	for _, a := range e.Annotations() {
		if ann, ok := a.(entsql.Annotation); ok {
			return ann.Table
		}
	}
	return ""
}

var _ = Describe("entity declarations", func() {
	entities := []ent.Interface{
		schema.PromptEvent{},
		schema.CommitEvent{},
		schema.CorrelationLink{},
		schema.ContentDraft{},
		schema.TemplateVersion{},
		schema.Checkpoint{},
	}

	It("declare one entity per migrated table", func() {
		var names []string
		for _, e := range entities {
			names = append(names, tableName(e))
		}
		var tables []string
		for _, t := range migrate.Tables {
			tables = append(tables, t.Name)
		}
		Expect(names).To(Equal(tables))
	})

	It("declare the migrated columns in order with matching types", func() {
		for i, e := range entities {
			Expect(declared(e)).To(Equal(migrated(migrate.Tables[i])), "table %s", migrate.Tables[i].Name)
		}
	})

	It("index the columns the store queries by", func() {
		for i, e := range entities {
			t := migrate.Tables[i]
			for _, idx := range t.Indexes {
				var cols []string
				for _, c := range idx.Columns {
					cols = append(cols, c.Name)
				}
				found := slices.ContainsFunc(e.Indexes(), func(ix ent.Index) bool {
					return slices.Equal(ix.Descriptor().Fields, cols)
				})
				Expect(found).To(BeTrue(), "index %s on %s", idx.Name, t.Name)
			}
		}
	})
})
