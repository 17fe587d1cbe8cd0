// Package schema declares the presence entities in ent's schema DSL. The
// migrator in pkg/storage/ent/migrate creates the same tables; timestamps are
// UTC Unix milliseconds.
package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PromptEvent holds the schema definition for the PromptEvent entity.
// One recorded instruction to an AI assistant, keyed by its UUID.
type PromptEvent struct {
	ent.Schema
}

// Annotations of the PromptEvent.
func (PromptEvent) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "prompt_events"}}
}

// Fields of the PromptEvent.
func (PromptEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("uuid").
			Unique().
			Immutable().
			NotEmpty(),

		field.String("session_id").
			Default("").
			Immutable(),

		field.String("project_path").
			Default("").
			Immutable(),

		field.Int64("ts").
			Immutable(),

		field.Text("text").
			Immutable(),
	}
}

// Indexes of the PromptEvent.
func (PromptEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("ts"),
	}
}
