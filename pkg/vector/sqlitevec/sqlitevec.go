// Package sqlitevec provides an embedded vector driver using SQLite with
// the sqlite-vec extension.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/vector"
)

// Driver implements vector.Driver over a vec0 virtual table. vec0 rows are
// keyed by integer rowid, so a mapping table holds the draft key and
// payload for each rowid.
type Driver struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ vector.Driver = (*Driver)(nil)

// Config holds configuration for the sqlite-vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewDriver opens DBPath and creates the tables if needed.
func NewDriver(c Config, log *slog.Logger) (*Driver, error) {
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}
	if log == nil {
		log = logger.Nop()
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite-vec not available: %w", vector.ErrConnection, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS recall_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			draft_id INTEGER NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS recall_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	log.Debug("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &Driver{db: db, logger: log}, nil
}

// serializeFloat32 encodes v as the little-endian blob sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		blob := serializeFloat32(doc.Embedding)

		var rowID int64
		err = tx.QueryRowContext(ctx,
			`SELECT rowid FROM recall_documents WHERE doc_id = ?`, doc.ID,
		).Scan(&rowID)

		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE recall_documents SET draft_id = ?, content_type = ?, body = ? WHERE rowid = ?`,
				doc.DraftID, doc.Type, doc.Text, rowID,
			); err != nil {
				return fmt.Errorf("updating document %s: %w", doc.ID, err)
			}
			// vec0 has no UPDATE.
			if _, err := tx.ExecContext(ctx, `DELETE FROM recall_embeddings WHERE rowid = ?`, rowID); err != nil {
				return fmt.Errorf("deleting old embedding for doc %s: %w", doc.ID, err)
			}

		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO recall_documents(doc_id, draft_id, content_type, body) VALUES (?, ?, ?, ?)`,
				doc.ID, doc.DraftID, doc.Type, doc.Text,
			)
			if err != nil {
				return fmt.Errorf("inserting document %s: %w", doc.ID, err)
			}
			if rowID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("getting rowid for doc %s: %w", doc.ID, err)
			}

		default:
			return fmt.Errorf("checking for existing document %s: %w", doc.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recall_embeddings(rowid, embedding) VALUES (?, ?)`, rowID, blob,
		); err != nil {
			return fmt.Errorf("inserting embedding for doc %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added documents to sqlite-vec", "count", len(docs))
	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT d.doc_id, d.draft_id, d.content_type, d.body, e.distance
		FROM recall_embeddings e
		INNER JOIN recall_documents d ON d.rowid = e.rowid
		WHERE e.embedding MATCH ?
			AND e.k = ?
		ORDER BY e.distance
	`, serializeFloat32(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var r vector.QueryResult
		var distance float64
		if err := rows.Scan(&r.ID, &r.DraftID, &r.Type, &r.Text, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		r.Score = float32(1.0 / (1.0 + distance))
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	return results, nil
}

func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	in, args := inClause(ids)
	rows, err := d.db.QueryContext(ctx,
		`SELECT doc_id, draft_id, content_type, body, rowid FROM recall_documents WHERE doc_id IN (`+in+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}

	type docRow struct {
		doc   vector.Document
		rowID int64
	}
	var found []docRow
	for rows.Next() {
		var dr docRow
		if err := rows.Scan(&dr.doc.ID, &dr.doc.DraftID, &dr.doc.Type, &dr.doc.Text, &dr.rowID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		found = append(found, dr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	// The single connection is free again once rows is closed.
	docs := make([]vector.Document, 0, len(found))
	for _, dr := range found {
		var blob []byte
		err := d.db.QueryRowContext(ctx, `SELECT embedding FROM recall_embeddings WHERE rowid = ?`, dr.rowID).Scan(&blob)
		if err == nil && len(blob) > 0 {
			dr.doc.Embedding, _ = deserializeFloat32(blob)
		}
		docs = append(docs, dr.doc)
	}

	return docs, nil
}

func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	in, args := inClause(ids)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recall_embeddings WHERE rowid IN (SELECT rowid FROM recall_documents WHERE doc_id IN (`+in+`))`,
		args...,
	); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recall_documents WHERE doc_id IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted documents from sqlite-vec", "count", len(ids))
	return nil
}

func (d *Driver) Close() error {
	return d.db.Close()
}

func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}
