package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CorrelationLink holds the schema definition for the CorrelationLink entity.
// Links are append-only: a re-scored pair gets a new revision and the old
// row points at it through superseded_by.
type CorrelationLink struct {
	ent.Schema
}

// Annotations of the CorrelationLink.
func (CorrelationLink) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "correlation_links"}}
}

// Fields of the CorrelationLink.
func (CorrelationLink) Fields() []ent.Field {
	return []ent.Field{
		field.String("commit_sha").
			NotEmpty().
			Immutable(),

		field.String("prompt_uuid").
			NotEmpty().
			Immutable(),

		field.Float("confidence").
			Min(0).
			Max(1).
			Immutable(),

		field.Int64("distance_ms").
			Immutable(),

		field.Int("revision").
			Positive().
			Immutable(),

		field.Int64("superseded_by").
			Optional().
			Nillable(),

		field.Int64("created_at").
			Immutable(),
	}
}

// Indexes of the CorrelationLink.
func (CorrelationLink) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("commit_sha", "prompt_uuid"),
	}
}
