package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ContentDraft holds the schema definition for the ContentDraft entity.
// commit_shas, prompt_uuids and dimensions hold JSON text.
type ContentDraft struct {
	ent.Schema
}

// Annotations of the ContentDraft.
func (ContentDraft) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "content_drafts"}}
}

// Fields of the ContentDraft.
func (ContentDraft) Fields() []ent.Field {
	return []ent.Field{
		field.String("dedupe_key").
			Unique().
			Immutable().
			NotEmpty(),

		field.String("content_type").
			Immutable().
			NotEmpty(),

		field.Text("commit_shas").
			Immutable(),

		field.Text("prompt_uuids").
			Immutable(),

		field.Text("body").
			Immutable(),

		field.String("template_kind").
			Default("").
			Immutable(),

		field.Int("template_version").
			Default(0).
			Immutable(),

		field.Bool("scored").
			Default(false),

		field.Float("score").
			Default(0),

		field.Text("dimensions").
			Optional().
			Nillable(),

		field.Text("rationale").
			Default(""),

		field.Bool("approved").
			Default(false),

		field.String("published_location").
			Optional().
			Nillable(),

		field.Int("publish_attempts").
			Default(0),

		field.Int64("publish_attempted_at").
			Optional().
			Nillable(),

		field.Int64("created_at").
			Immutable(),

		field.Int64("scored_at").
			Optional().
			Nillable(),

		field.Int64("published_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the ContentDraft.
func (ContentDraft) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("approved", "published_location"),
	}
}
