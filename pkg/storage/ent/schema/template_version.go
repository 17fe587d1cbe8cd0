package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TemplateVersion holds the schema definition for the TemplateVersion entity.
// The table is keyed by (kind, version).
type TemplateVersion struct {
	ent.Schema
}

// Annotations of the TemplateVersion.
func (TemplateVersion) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "template_versions"}}
}

// Fields of the TemplateVersion.
func (TemplateVersion) Fields() []ent.Field {
	return []ent.Field{
		field.String("kind").
			NotEmpty().
			Immutable(),

		field.Int("version").
			Positive().
			Immutable(),

		field.Text("text").
			Immutable(),

		field.Float("avg_score").
			Default(0),

		field.Int("uses").
			Default(0),

		field.Int64("created_at").
			Immutable(),
	}
}

// Indexes of the TemplateVersion.
func (TemplateVersion) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("kind", "version").Unique(),
	}
}
