// Package entdriver implements storage.Driver on database/sql, building every
// statement with ent's dialect-aware SQL builders. It is database-agnostic
// and is embedded by the sqlite and postgres drivers.
package entdriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/storage/ent/migrate"
)

const (
	promptsTable     = "prompt_events"
	commitsTable     = "commit_events"
	linksTable       = "correlation_links"
	draftsTable      = "content_drafts"
	templatesTable   = "template_versions"
	checkpointsTable = "checkpoints"
)

var draftColumns = []string{
	"id", "dedupe_key", "content_type", "commit_shas", "prompt_uuids", "body",
	"template_kind", "template_version", "scored", "score", "dimensions",
	"rationale", "approved", "published_location", "publish_attempts",
	"publish_attempted_at", "created_at", "published_at",
}

var _ storage.Driver = (*EntDriver)(nil)

// EntDriver provides storage operations over an ent SQL driver.
type EntDriver struct {
	drv *entsql.Driver

	// Now is the clock used for created/published timestamps.
	Now func() time.Time
}

// New migrates the schema on drv and returns a driver over it.
func New(ctx context.Context, drv *entsql.Driver) (*EntDriver, error) {
	if err := migrate.Create(ctx, drv); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &EntDriver{drv: drv, Now: time.Now}, nil
}

// DB returns the underlying database handle.
func (ed *EntDriver) DB() *sql.DB {
	return ed.drv.DB()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.drv.Dialect())
}

func (ed *EntDriver) now() int64 {
	return ed.Now().UTC().UnixMilli()
}

// RecordPrompt stores a prompt. Duplicate UUIDs are ignored.
func (ed *EntDriver) RecordPrompt(ctx context.Context, p activity.PromptEvent) (bool, error) {
	if p.UUID == "" {
		return false, errors.New("cannot store prompt without uuid")
	}

	query, args := ed.builder().Insert(promptsTable).
		Columns("uuid", "session_id", "project_path", "ts", "text").
		Values(p.UUID, p.SessionID, p.ProjectPath, toMillis(p.Timestamp), p.Text).
		OnConflict(entsql.ConflictColumns("uuid"), entsql.DoNothing()).
		Query()

	return ed.execInserted(ctx, ed.DB(), query, args)
}

// RecordCommit stores a commit. Duplicate SHAs are ignored.
func (ed *EntDriver) RecordCommit(ctx context.Context, c activity.CommitEvent) (bool, error) {
	if c.SHA == "" {
		return false, errors.New("cannot store commit without sha")
	}

	query, args := ed.builder().Insert(commitsTable).
		Columns("sha", "repo", "message", "author", "url", "ts").
		Values(c.SHA, c.Repo, c.Message, c.Author, c.URL, toMillis(c.Timestamp)).
		OnConflict(entsql.ConflictColumns("sha"), entsql.DoNothing()).
		Query()

	return ed.execInserted(ctx, ed.DB(), query, args)
}

func (ed *EntDriver) FindUnlinkedCommitsSince(ctx context.Context, since time.Time) ([]activity.CommitEvent, error) {
	return ed.selectCommits(ctx, entsql.And(
		entsql.GTE("ts", toMillis(since)),
		entsql.IsNull("consumed_at"),
	))
}

func (ed *EntDriver) FindCommitsInRange(ctx context.Context, start, end time.Time) ([]activity.CommitEvent, error) {
	return ed.selectCommits(ctx, entsql.And(
		entsql.GTE("ts", toMillis(start)),
		entsql.LT("ts", toMillis(end)),
	))
}

func (ed *EntDriver) FindPromptsInWindow(ctx context.Context, center time.Time, radius time.Duration) ([]activity.PromptEvent, error) {
	c := toMillis(center)
	r := radius.Milliseconds()
	return ed.selectPrompts(ctx, entsql.And(
		entsql.GTE("ts", c-r),
		entsql.LTE("ts", c+r),
	))
}

func (ed *EntDriver) FindPromptsInRange(ctx context.Context, start, end time.Time) ([]activity.PromptEvent, error) {
	return ed.selectPrompts(ctx, entsql.And(
		entsql.GTE("ts", toMillis(start)),
		entsql.LT("ts", toMillis(end)),
	))
}

func (ed *EntDriver) selectCommits(ctx context.Context, where *entsql.Predicate) ([]activity.CommitEvent, error) {
	b := ed.builder()
	query, args := b.Select("sha", "repo", "message", "author", "url", "ts").
		From(b.Table(commitsTable)).
		Where(where).
		OrderBy("ts", "sha").
		Query()

	rows, err := ed.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commits: %w", err)
	}
	defer rows.Close()

	var out []activity.CommitEvent
	for rows.Next() {
		var (
			c  activity.CommitEvent
			ts int64
		)
		if err := rows.Scan(&c.SHA, &c.Repo, &c.Message, &c.Author, &c.URL, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		c.Timestamp = fromMillis(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (ed *EntDriver) selectPrompts(ctx context.Context, where *entsql.Predicate) ([]activity.PromptEvent, error) {
	b := ed.builder()
	query, args := b.Select("uuid", "session_id", "project_path", "ts", "text").
		From(b.Table(promptsTable)).
		Where(where).
		OrderBy("ts", "uuid").
		Query()

	rows, err := ed.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer rows.Close()

	var out []activity.PromptEvent
	for rows.Next() {
		var (
			p  activity.PromptEvent
			ts int64
		)
		if err := rows.Scan(&p.UUID, &p.SessionID, &p.ProjectPath, &ts, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		p.Timestamp = fromMillis(ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordLinks appends links in one transaction.
func (ed *EntDriver) RecordLinks(ctx context.Context, links []activity.CorrelationLink) error {
	return ed.withTx(ctx, func(tx *sql.Tx) error {
		return ed.recordLinks(ctx, tx, links)
	})
}

func (ed *EntDriver) recordLinks(ctx context.Context, q queryer, links []activity.CorrelationLink) error {
	b := ed.builder()
	for _, l := range links {
		query, args := b.Select("id", "revision", "confidence").
			From(b.Table(linksTable)).
			Where(entsql.And(
				entsql.EQ("commit_sha", l.CommitSHA),
				entsql.EQ("prompt_uuid", l.PromptUUID),
				entsql.IsNull("superseded_by"),
			)).
			Query()

		var (
			prevID, prevRev int64
			prevConf        float64
			hasPrev         = true
		)
		err := q.QueryRowContext(ctx, query, args...).Scan(&prevID, &prevRev, &prevConf)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			hasPrev = false
		case err != nil:
			return fmt.Errorf("failed to query active link: %w", err)
		}
		if hasPrev && prevConf == l.Confidence {
			continue
		}

		rev := int64(1)
		if hasPrev {
			rev = prevRev + 1
		}
		id, _, err := ed.insertID(ctx, q, b.Insert(linksTable).
			Columns("commit_sha", "prompt_uuid", "confidence", "distance_ms", "revision", "created_at").
			Values(l.CommitSHA, l.PromptUUID, l.Confidence, l.Distance.Milliseconds(), rev, ed.now()))
		if err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}

		if hasPrev {
			query, args := b.Update(linksTable).
				Set("superseded_by", id).
				Where(entsql.EQ("id", prevID)).
				Query()
			if _, err := q.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to supersede link %d: %w", prevID, err)
			}
		}
	}
	return nil
}

func (ed *EntDriver) LinksForCommit(ctx context.Context, sha string, includeSuperseded bool) ([]activity.CorrelationLink, error) {
	where := entsql.EQ("commit_sha", sha)
	if !includeSuperseded {
		where = entsql.And(where, entsql.IsNull("superseded_by"))
	}

	b := ed.builder()
	query, args := b.Select("id", "commit_sha", "prompt_uuid", "confidence", "distance_ms", "revision", "superseded_by", "created_at").
		From(b.Table(linksTable)).
		Where(where).
		OrderBy("id").
		Query()

	rows, err := ed.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var out []activity.CorrelationLink
	for rows.Next() {
		var (
			l          activity.CorrelationLink
			distance   int64
			superseded sql.NullInt64
			created    int64
		)
		if err := rows.Scan(&l.ID, &l.CommitSHA, &l.PromptUUID, &l.Confidence, &distance, &l.Revision, &superseded, &created); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		l.Distance = time.Duration(distance) * time.Millisecond
		l.CreatedAt = fromMillis(created)
		if superseded.Valid {
			v := superseded.Int64
			l.SupersededBy = &v
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(out)
	return out, nil
}

// SaveDraft stores a draft keyed by its dedupe key.
func (ed *EntDriver) SaveDraft(ctx context.Context, d activity.ContentDraft) (int64, bool, error) {
	var (
		id     int64
		stored bool
	)
	err := ed.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, stored, err = ed.saveDraft(ctx, tx, d)
		return err
	})
	return id, stored, err
}

func (ed *EntDriver) saveDraft(ctx context.Context, q queryer, d activity.ContentDraft) (int64, bool, error) {
	if !d.Type.Valid() {
		return 0, false, fmt.Errorf("cannot store draft with unknown content type %q", d.Type)
	}

	commits, err := json.Marshal(nonNil(d.CommitSHAs))
	if err != nil {
		return 0, false, fmt.Errorf("failed to marshal commit shas: %w", err)
	}
	prompts, err := json.Marshal(nonNil(d.PromptUUIDs))
	if err != nil {
		return 0, false, fmt.Errorf("failed to marshal prompt uuids: %w", err)
	}

	var (
		dims     any
		scoredAt any
		now      = ed.now()
	)
	if d.Scored {
		raw, err := json.Marshal(d.Dimensions)
		if err != nil {
			return 0, false, fmt.Errorf("failed to marshal dimensions: %w", err)
		}
		dims = string(raw)
		scoredAt = now
	}

	b := ed.builder()
	id, stored, err := ed.insertID(ctx, q, b.Insert(draftsTable).
		Columns("dedupe_key", "content_type", "commit_shas", "prompt_uuids", "body",
			"template_kind", "template_version", "scored", "score", "dimensions",
			"rationale", "approved", "publish_attempts", "created_at", "scored_at").
		Values(d.Key, string(d.Type), string(commits), string(prompts), d.Body,
			string(d.TemplateKind), d.TemplateVersion, d.Scored, d.Score, dims,
			d.Rationale, d.Scored && d.Approved, 0, now, scoredAt).
		OnConflict(entsql.ConflictColumns("dedupe_key"), entsql.DoNothing()))
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert draft: %w", err)
	}
	if stored {
		return id, true, nil
	}

	query, args := b.Select("id").
		From(b.Table(draftsTable)).
		Where(entsql.EQ("dedupe_key", d.Key)).
		Query()
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("failed to load existing draft %q: %w", d.Key, err)
	}
	return id, false, nil
}

func (ed *EntDriver) ScoreDraft(ctx context.Context, id int64, eval storage.Evaluation) error {
	dims, err := json.Marshal(eval.Dimensions)
	if err != nil {
		return fmt.Errorf("failed to marshal dimensions: %w", err)
	}

	query, args := ed.builder().Update(draftsTable).
		Set("scored", true).
		Set("score", eval.Score).
		Set("dimensions", string(dims)).
		Set("rationale", eval.Rationale).
		Set("approved", eval.Approved).
		Set("scored_at", ed.now()).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("scored", false))).
		Query()

	n, err := ed.execAffected(ctx, ed.DB(), query, args)
	if err != nil {
		return fmt.Errorf("failed to score draft: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := ed.GetDraft(ctx, id); err != nil {
		return err
	}
	return storage.ErrAlreadyScored
}

// SaveUnit writes links, draft and consumed markers in one transaction.
func (ed *EntDriver) SaveUnit(ctx context.Context, rec storage.UnitRecord) (int64, bool, error) {
	var (
		id     int64
		stored bool
	)
	err := ed.withTx(ctx, func(tx *sql.Tx) error {
		if err := ed.recordLinks(ctx, tx, rec.Links); err != nil {
			return err
		}

		var err error
		id, stored, err = ed.saveDraft(ctx, tx, rec.Draft)
		if err != nil {
			return err
		}

		if stored && rec.ScoreTemplate {
			d := rec.Draft
			if err := ed.recordTemplateScore(ctx, tx, d.TemplateKind, d.TemplateVersion, d.Score); err != nil {
				return err
			}
		}

		if len(rec.Consumed) == 0 {
			return nil
		}
		shas := make([]any, len(rec.Consumed))
		for i, sha := range rec.Consumed {
			shas[i] = sha
		}
		query, args := ed.builder().Update(commitsTable).
			Set("consumed_at", ed.now()).
			Where(entsql.And(entsql.In("sha", shas...), entsql.IsNull("consumed_at"))).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mark commits consumed: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, stored, nil
}

func (ed *EntDriver) HasDraft(ctx context.Context, key string) (bool, error) {
	b := ed.builder()
	query, args := b.Select("id").
		From(b.Table(draftsTable)).
		Where(entsql.EQ("dedupe_key", key)).
		Query()

	var id int64
	err := ed.DB().QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to check draft: %w", err)
	}
	return true, nil
}

func (ed *EntDriver) GetDraft(ctx context.Context, id int64) (activity.ContentDraft, error) {
	drafts, err := ed.selectDrafts(ctx, entsql.EQ("id", id), 1, false)
	if err != nil {
		return activity.ContentDraft{}, err
	}
	if len(drafts) == 0 {
		return activity.ContentDraft{}, storage.NotFoundError{Kind: "draft", Key: strconv.FormatInt(id, 10)}
	}
	return drafts[0], nil
}

// ListDrafts returns drafts matching filter, oldest first unless
// filter.Newest is set.
func (ed *EntDriver) ListDrafts(ctx context.Context, filter storage.DraftFilter) ([]activity.ContentDraft, error) {
	var preds []*entsql.Predicate
	if filter.Type != "" {
		preds = append(preds, entsql.EQ("content_type", string(filter.Type)))
	}
	switch filter.State {
	case "":
	case activity.StateUnscored:
		preds = append(preds, entsql.EQ("scored", false))
	case activity.StateSuppressed:
		preds = append(preds, entsql.EQ("scored", true), entsql.EQ("approved", false))
	case activity.StatePending:
		preds = append(preds, entsql.EQ("approved", true), entsql.IsNull("published_location"))
	case activity.StatePublished:
		preds = append(preds, entsql.NotNull("published_location"))
	default:
		return nil, fmt.Errorf("unknown draft state %q", filter.State)
	}

	var where *entsql.Predicate
	if len(preds) > 0 {
		where = entsql.And(preds...)
	}
	return ed.selectDrafts(ctx, where, filter.Limit, filter.Newest)
}

func (ed *EntDriver) UnpublishedApprovedDrafts(ctx context.Context) ([]activity.ContentDraft, error) {
	return ed.ListDrafts(ctx, storage.DraftFilter{State: activity.StatePending})
}

func (ed *EntDriver) selectDrafts(ctx context.Context, where *entsql.Predicate, limit int, newest bool) ([]activity.ContentDraft, error) {
	b := ed.builder()
	sel := b.Select(draftColumns...).From(b.Table(draftsTable))
	if where != nil {
		sel = sel.Where(where)
	}
	if newest {
		sel = sel.OrderBy(entsql.Desc("id"))
	} else {
		sel = sel.OrderBy("id")
	}
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := ed.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var out []activity.ContentDraft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDraft(rows *sql.Rows) (activity.ContentDraft, error) {
	var (
		d           activity.ContentDraft
		ct, kind    string
		commits     string
		prompts     string
		dims        sql.NullString
		location    sql.NullString
		attemptedAt sql.NullInt64
		created     int64
		publishedAt sql.NullInt64
	)
	err := rows.Scan(&d.ID, &d.Key, &ct, &commits, &prompts, &d.Body,
		&kind, &d.TemplateVersion, &d.Scored, &d.Score, &dims,
		&d.Rationale, &d.Approved, &location, &d.PublishAttempts,
		&attemptedAt, &created, &publishedAt)
	if err != nil {
		return d, fmt.Errorf("failed to scan draft: %w", err)
	}

	d.Type = activity.ContentType(ct)
	d.TemplateKind = activity.TemplateKind(kind)
	d.PublishedLocation = location.String
	d.CreatedAt = fromMillis(created)
	if attemptedAt.Valid {
		t := fromMillis(attemptedAt.Int64)
		d.PublishAttemptedAt = &t
	}
	if publishedAt.Valid {
		t := fromMillis(publishedAt.Int64)
		d.PublishedAt = &t
	}
	if err := json.Unmarshal([]byte(commits), &d.CommitSHAs); err != nil {
		return d, fmt.Errorf("failed to unmarshal commit shas: %w", err)
	}
	if err := json.Unmarshal([]byte(prompts), &d.PromptUUIDs); err != nil {
		return d, fmt.Errorf("failed to unmarshal prompt uuids: %w", err)
	}
	if dims.Valid && dims.String != "" {
		if err := json.Unmarshal([]byte(dims.String), &d.Dimensions); err != nil {
			return d, fmt.Errorf("failed to unmarshal dimensions: %w", err)
		}
	}
	return d, nil
}

func (ed *EntDriver) RecordPublishAttempt(ctx context.Context, id int64, at time.Time) error {
	query, args := ed.builder().Update(draftsTable).
		Add("publish_attempts", 1).
		Set("publish_attempted_at", toMillis(at)).
		Where(entsql.EQ("id", id)).
		Query()

	n, err := ed.execAffected(ctx, ed.DB(), query, args)
	if err != nil {
		return fmt.Errorf("failed to record publish attempt: %w", err)
	}
	if n == 0 {
		return storage.NotFoundError{Kind: "draft", Key: strconv.FormatInt(id, 10)}
	}
	return nil
}

// MarkPublished sets the location only on an approved draft that has none,
// in a single guarded UPDATE.
func (ed *EntDriver) MarkPublished(ctx context.Context, id int64, location string, at time.Time) error {
	if location == "" {
		return errors.New("cannot mark draft published without a location")
	}

	query, args := ed.builder().Update(draftsTable).
		Set("published_location", location).
		Set("published_at", toMillis(at)).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("approved", true),
			entsql.IsNull("published_location"),
		)).
		Query()

	n, err := ed.execAffected(ctx, ed.DB(), query, args)
	if err != nil {
		return fmt.Errorf("failed to mark draft published: %w", err)
	}
	if n > 0 {
		return nil
	}

	d, err := ed.GetDraft(ctx, id)
	if err != nil {
		return err
	}
	if d.Published() {
		return storage.ErrAlreadyPublished
	}
	return storage.ErrNotApproved
}

func (ed *EntDriver) ActiveTemplate(ctx context.Context, kind activity.TemplateKind) (activity.TemplateVersion, error) {
	versions, err := ed.ListTemplates(ctx, kind)
	if err != nil {
		return activity.TemplateVersion{}, err
	}
	if len(versions) == 0 {
		return activity.TemplateVersion{}, storage.NotFoundError{Kind: "template", Key: string(kind)}
	}
	return versions[len(versions)-1], nil
}

// AddTemplate appends the next version for kind. Two writers racing on the
// same kind collide on the (kind, version) primary key and one fails.
func (ed *EntDriver) AddTemplate(ctx context.Context, kind activity.TemplateKind, text string) (activity.TemplateVersion, error) {
	tv := activity.TemplateVersion{Kind: kind, Text: text}
	err := ed.withTx(ctx, func(tx *sql.Tx) error {
		versions, err := ed.listTemplates(ctx, tx, kind)
		if err != nil {
			return err
		}
		tv.Version = len(versions) + 1
		if n := len(versions); n > 0 {
			tv.Version = versions[n-1].Version + 1
		}

		now := ed.now()
		tv.CreatedAt = fromMillis(now)
		query, args := ed.builder().Insert(templatesTable).
			Columns("kind", "version", "text", "avg_score", "uses", "created_at").
			Values(string(kind), tv.Version, text, 0.0, 0, now).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert template: %w", err)
		}
		return nil
	})
	return tv, err
}

func (ed *EntDriver) ListTemplates(ctx context.Context, kind activity.TemplateKind) ([]activity.TemplateVersion, error) {
	return ed.listTemplates(ctx, ed.DB(), kind)
}

func (ed *EntDriver) listTemplates(ctx context.Context, q queryer, kind activity.TemplateKind) ([]activity.TemplateVersion, error) {
	b := ed.builder()
	query, args := b.Select("kind", "version", "text", "avg_score", "uses", "created_at").
		From(b.Table(templatesTable)).
		Where(entsql.EQ("kind", string(kind))).
		OrderBy("version").
		Query()

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var out []activity.TemplateVersion
	for rows.Next() {
		var (
			tv      activity.TemplateVersion
			k       string
			created int64
		)
		if err := rows.Scan(&k, &tv.Version, &tv.Text, &tv.AvgScore, &tv.Uses, &created); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		tv.Kind = activity.TemplateKind(k)
		tv.CreatedAt = fromMillis(created)
		out = append(out, tv)
	}
	return out, rows.Err()
}

// RecordTemplateScore updates the running average inside a transaction so
// concurrent gates do not lose samples.
func (ed *EntDriver) RecordTemplateScore(ctx context.Context, kind activity.TemplateKind, version int, score float64) error {
	return ed.withTx(ctx, func(tx *sql.Tx) error {
		return ed.recordTemplateScore(ctx, tx, kind, version, score)
	})
}

func (ed *EntDriver) recordTemplateScore(ctx context.Context, q queryer, kind activity.TemplateKind, version int, score float64) error {
	b := ed.builder()
	where := entsql.And(entsql.EQ("kind", string(kind)), entsql.EQ("version", version))
	query, args := b.Select("avg_score", "uses").
		From(b.Table(templatesTable)).
		Where(where).
		Query()

	var (
		avg  float64
		uses int
	)
	err := q.QueryRowContext(ctx, query, args...).Scan(&avg, &uses)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NotFoundError{Kind: "template", Key: string(kind) + "@" + strconv.Itoa(version)}
	}
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	query, args = b.Update(templatesTable).
		Set("avg_score", activity.RunningAverage(avg, uses, score)).
		Set("uses", uses+1).
		Where(entsql.And(
			entsql.EQ("kind", string(kind)),
			entsql.EQ("version", version),
			entsql.EQ("uses", uses),
		)).
		Query()
	n, err := ed.execAffected(ctx, q, query, args)
	if err != nil {
		return fmt.Errorf("failed to update template score: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("template %s@%d changed concurrently", kind, version)
	}
	return nil
}

func (ed *EntDriver) Checkpoint(ctx context.Context, name string) (time.Time, bool, error) {
	b := ed.builder()
	query, args := b.Select("ts").
		From(b.Table(checkpointsTable)).
		Where(entsql.EQ("name", name)).
		Query()

	var ts int64
	err := ed.DB().QueryRowContext(ctx, query, args...).Scan(&ts)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, fmt.Errorf("failed to load checkpoint %q: %w", name, err)
	}
	return fromMillis(ts), true, nil
}

// AdvanceCheckpoint inserts the cursor or moves it forward; an older t
// leaves the stored cursor untouched.
func (ed *EntDriver) AdvanceCheckpoint(ctx context.Context, name string, t time.Time) error {
	ts := toMillis(t)
	return ed.withTx(ctx, func(tx *sql.Tx) error {
		b := ed.builder()
		query, args := b.Insert(checkpointsTable).
			Columns("name", "ts").
			Values(name, ts).
			OnConflict(entsql.ConflictColumns("name"), entsql.DoNothing()).
			Query()
		inserted, err := ed.execInserted(ctx, tx, query, args)
		if err != nil {
			return fmt.Errorf("failed to insert checkpoint %q: %w", name, err)
		}
		if inserted {
			return nil
		}

		query, args = b.Update(checkpointsTable).
			Set("ts", ts).
			Where(entsql.And(entsql.EQ("name", name), entsql.LT("ts", ts))).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to advance checkpoint %q: %w", name, err)
		}
		return nil
	})
}

// Close closes the database connection.
func (ed *EntDriver) Close() error {
	return ed.drv.Close()
}

func (ed *EntDriver) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := ed.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertID executes an insert and returns the new row id. Postgres has no
// LastInsertId, so the id comes back through RETURNING there.
func (ed *EntDriver) insertID(ctx context.Context, q queryer, ib *entsql.InsertBuilder) (int64, bool, error) {
	if ed.drv.Dialect() == dialect.Postgres {
		query, args := ib.Returning("id").Query()
		var id int64
		err := q.QueryRowContext(ctx, query, args...).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return 0, false, nil
		case err != nil:
			return 0, false, err
		}
		return id, true, nil
	}

	query, args := ib.Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (ed *EntDriver) execInserted(ctx context.Context, q queryer, query string, args []any) (bool, error) {
	n, err := ed.execAffected(ctx, q, query, args)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (ed *EntDriver) execAffected(ctx context.Context, q queryer, query string, args []any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toMillis(t time.Time) int64 {
	return activity.Normalize(t).UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
