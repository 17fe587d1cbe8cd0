// Package migrate declares the presence tables for ent's schema migrator.
// All timestamps are UTC Unix milliseconds.
package migrate

import (
	"context"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// PromptEventsColumns holds the columns for the "prompt_events" table.
	PromptEventsColumns = []*schema.Column{
		{Name: "uuid", Type: field.TypeString, Unique: true},
		{Name: "session_id", Type: field.TypeString, Default: ""},
		{Name: "project_path", Type: field.TypeString, Default: ""},
		{Name: "ts", Type: field.TypeInt64},
		{Name: "text", Type: field.TypeString, Size: 2147483647},
	}
	// PromptEventsTable holds the schema information for the "prompt_events" table.
	PromptEventsTable = &schema.Table{
		Name:       "prompt_events",
		Columns:    PromptEventsColumns,
		PrimaryKey: []*schema.Column{PromptEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "promptevent_ts", Unique: false, Columns: []*schema.Column{PromptEventsColumns[3]}},
		},
	}

	// CommitEventsColumns holds the columns for the "commit_events" table.
	// consumed_at is set when a saved unit has turned the commit into content.
	CommitEventsColumns = []*schema.Column{
		{Name: "sha", Type: field.TypeString, Unique: true},
		{Name: "repo", Type: field.TypeString, Default: ""},
		{Name: "message", Type: field.TypeString, Size: 2147483647},
		{Name: "author", Type: field.TypeString, Default: ""},
		{Name: "url", Type: field.TypeString, Default: ""},
		{Name: "ts", Type: field.TypeInt64},
		{Name: "consumed_at", Type: field.TypeInt64, Nullable: true},
	}
	// CommitEventsTable holds the schema information for the "commit_events" table.
	CommitEventsTable = &schema.Table{
		Name:       "commit_events",
		Columns:    CommitEventsColumns,
		PrimaryKey: []*schema.Column{CommitEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "commitevent_ts", Unique: false, Columns: []*schema.Column{CommitEventsColumns[5]}},
		},
	}

	// CorrelationLinksColumns holds the columns for the "correlation_links" table.
	CorrelationLinksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "commit_sha", Type: field.TypeString},
		{Name: "prompt_uuid", Type: field.TypeString},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "distance_ms", Type: field.TypeInt64},
		{Name: "revision", Type: field.TypeInt},
		{Name: "superseded_by", Type: field.TypeInt64, Nullable: true},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// CorrelationLinksTable holds the schema information for the "correlation_links" table.
	CorrelationLinksTable = &schema.Table{
		Name:       "correlation_links",
		Columns:    CorrelationLinksColumns,
		PrimaryKey: []*schema.Column{CorrelationLinksColumns[0]},
		Indexes: []*schema.Index{
			{Name: "correlationlink_commit_sha_prompt_uuid", Unique: false, Columns: []*schema.Column{CorrelationLinksColumns[1], CorrelationLinksColumns[2]}},
		},
	}

	// ContentDraftsColumns holds the columns for the "content_drafts" table.
	// commit_shas, prompt_uuids and dimensions are JSON encoded.
	ContentDraftsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "dedupe_key", Type: field.TypeString, Unique: true},
		{Name: "content_type", Type: field.TypeString},
		{Name: "commit_shas", Type: field.TypeString, Size: 2147483647},
		{Name: "prompt_uuids", Type: field.TypeString, Size: 2147483647},
		{Name: "body", Type: field.TypeString, Size: 2147483647},
		{Name: "template_kind", Type: field.TypeString, Default: ""},
		{Name: "template_version", Type: field.TypeInt, Default: 0},
		{Name: "scored", Type: field.TypeBool, Default: false},
		{Name: "score", Type: field.TypeFloat64, Default: 0},
		{Name: "dimensions", Type: field.TypeString, Size: 2147483647, Nullable: true},
		{Name: "rationale", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "approved", Type: field.TypeBool, Default: false},
		{Name: "published_location", Type: field.TypeString, Nullable: true},
		{Name: "publish_attempts", Type: field.TypeInt, Default: 0},
		{Name: "publish_attempted_at", Type: field.TypeInt64, Nullable: true},
		{Name: "created_at", Type: field.TypeInt64},
		{Name: "scored_at", Type: field.TypeInt64, Nullable: true},
		{Name: "published_at", Type: field.TypeInt64, Nullable: true},
	}
	// ContentDraftsTable holds the schema information for the "content_drafts" table.
	ContentDraftsTable = &schema.Table{
		Name:       "content_drafts",
		Columns:    ContentDraftsColumns,
		PrimaryKey: []*schema.Column{ContentDraftsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "contentdraft_approved_published_location", Unique: false, Columns: []*schema.Column{ContentDraftsColumns[12], ContentDraftsColumns[13]}},
		},
	}

	// TemplateVersionsColumns holds the columns for the "template_versions" table.
	TemplateVersionsColumns = []*schema.Column{
		{Name: "kind", Type: field.TypeString},
		{Name: "version", Type: field.TypeInt},
		{Name: "text", Type: field.TypeString, Size: 2147483647},
		{Name: "avg_score", Type: field.TypeFloat64, Default: 0},
		{Name: "uses", Type: field.TypeInt, Default: 0},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// TemplateVersionsTable holds the schema information for the "template_versions" table.
	TemplateVersionsTable = &schema.Table{
		Name:       "template_versions",
		Columns:    TemplateVersionsColumns,
		PrimaryKey: []*schema.Column{TemplateVersionsColumns[0], TemplateVersionsColumns[1]},
	}

	// CheckpointsColumns holds the columns for the "checkpoints" table.
	CheckpointsColumns = []*schema.Column{
		{Name: "name", Type: field.TypeString, Unique: true},
		{Name: "ts", Type: field.TypeInt64},
	}
	// CheckpointsTable holds the schema information for the "checkpoints" table.
	CheckpointsTable = &schema.Table{
		Name:       "checkpoints",
		Columns:    CheckpointsColumns,
		PrimaryKey: []*schema.Column{CheckpointsColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		PromptEventsTable,
		CommitEventsTable,
		CorrelationLinksTable,
		ContentDraftsTable,
		TemplateVersionsTable,
		CheckpointsTable,
	}
)

// Create runs ent's migrator for all tables. Migrations are additive: new
// tables, columns and indexes are created, nothing is dropped.
func Create(ctx context.Context, drv dialect.Driver, opts ...schema.MigrateOption) error {
	m, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return err
	}
	return m.Create(ctx, Tables...)
}
