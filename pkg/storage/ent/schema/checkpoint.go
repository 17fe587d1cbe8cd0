package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
)

// Checkpoint holds the schema definition for the Checkpoint entity: a named
// poll cursor that only moves forward.
type Checkpoint struct {
	ent.Schema
}

// Annotations of the Checkpoint.
func (Checkpoint) Annotations() []schema.Annotation {
	return []schema.Annotation{entsql.Annotation{Table: "checkpoints"}}
}

// Fields of the Checkpoint.
func (Checkpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("name").
			Unique().
			Immutable().
			NotEmpty(),

		field.Int64("ts"),
	}
}
