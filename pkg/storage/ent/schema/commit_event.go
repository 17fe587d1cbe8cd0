package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CommitEvent holds the schema definition for the CommitEvent entity.
type CommitEvent struct {
	ent.Schema
}

// Annotations of the CommitEvent.
func (CommitEvent) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "commit_events"}}
}

// Fields of the CommitEvent. Everything but consumed_at is immutable;
// consumed_at is set once by the unit that turned the commit into content.
func (CommitEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("sha").
			Unique().
			Immutable().
			NotEmpty(),

		field.String("repo").
			Default("").
			Immutable(),

		field.Text("message").
			Immutable(),

		field.String("author").
			Default("").
			Immutable(),

		field.String("url").
			Default("").
			Immutable(),

		field.Int64("ts").
			Immutable(),

		field.Int64("consumed_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the CommitEvent.
func (CommitEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("ts"),
	}
}
