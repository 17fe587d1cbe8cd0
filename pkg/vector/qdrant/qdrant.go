// Package qdrant provides a vector driver backed by a Qdrant server over
// its gRPC API.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/vector"
)

const (
	// DefaultCollection holds presence recall documents.
	DefaultCollection = "presence_recall"

	defaultPort = 6334
)

// pointsClient is the part of the Qdrant client the driver uses.
type pointsClient interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qc.CreateCollection) error
	Upsert(ctx context.Context, req *qc.UpsertPoints) (*qc.UpdateResult, error)
	Query(ctx context.Context, req *qc.QueryPoints) ([]*qc.ScoredPoint, error)
	Get(ctx context.Context, req *qc.GetPoints) ([]*qc.RetrievedPoint, error)
	Delete(ctx context.Context, req *qc.DeletePoints) (*qc.UpdateResult, error)
	Close() error
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is the gRPC address, "host" or "host:port".
	Target string

	// Collection defaults to DefaultCollection.
	Collection string

	// Dimensions sizes the collection when it is created.
	Dimensions uint
}

// Driver implements vector.Driver on a Qdrant collection. Point ids are
// derived from the document ID so that re-adding a draft replaces it.
type Driver struct {
	client     pointsClient
	collection string
	logger     *slog.Logger
}

var _ vector.Driver = (*Driver)(nil)

// NewDriver connects to Qdrant and creates the collection if missing.
func NewDriver(c Config, log *slog.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, errors.New("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	client, err := qc.NewClient(&qc.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	d, err := newDriver(context.Background(), client, c, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return d, nil
}

func newDriver(ctx context.Context, client pointsClient, c Config, log *slog.Logger) (*Driver, error) {
	if log == nil {
		log = logger.Nop()
	}
	collection := c.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking collection %s: %w", vector.ErrConnection, collection, err)
	}
	if !exists {
		err := client.CreateCollection(ctx, &qc.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qc.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", collection, err)
		}
		log.Info("created qdrant collection", "collection", collection, "dimensions", c.Dimensions)
	}

	return &Driver{client: client, collection: collection, logger: log}, nil
}

func splitTarget(target string) (string, int, error) {
	if target == "" {
		return "localhost", defaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, defaultPort, nil //nolint:nilerr // bare host
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

// PointID maps a document ID to the UUID Qdrant stores it under.
func PointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("presence:"+docID)).String()
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qc.PointStruct, 0, len(docs))
	for _, doc := range docs {
		points = append(points, &qc.PointStruct{
			Id:      qc.NewID(PointID(doc.ID)),
			Vectors: qc.NewVectors(doc.Embedding...),
			Payload: map[string]*qc.Value{
				"doc_id":       qc.NewValueString(doc.ID),
				"draft_id":     qc.NewValueInt(doc.DraftID),
				"content_type": qc.NewValueString(doc.Type),
				"text":         qc.NewValueString(doc.Text),
			},
		})
	}

	wait := true
	if _, err := d.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)

	points, err := d.client.Query(ctx, &qc.QueryPoints{
		CollectionName: d.collection,
		Query:          qc.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		results = append(results, vector.QueryResult{
			Document: fromPayload(p.GetPayload()),
			Score:    p.GetScore(),
		})
	}
	return results, nil
}

func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qc.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qc.NewID(PointID(id))
	}

	points, err := d.client.Get(ctx, &qc.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs,
		WithPayload:    qc.NewWithPayload(true),
		WithVectors:    qc.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		doc := fromPayload(p.GetPayload())
		doc.Embedding = p.GetVectors().GetVector().GetData()
		docs = append(docs, doc)
	}
	return docs, nil
}

func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qc.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qc.NewID(PointID(id))
	}

	wait := true
	if _, err := d.client.Delete(ctx, &qc.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         qc.NewPointsSelector(pointIDs...),
	}); err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}

func fromPayload(p map[string]*qc.Value) vector.Document {
	return vector.Document{
		ID:      p["doc_id"].GetStringValue(),
		DraftID: p["draft_id"].GetIntegerValue(),
		Type:    p["content_type"].GetStringValue(),
		Text:    p["text"].GetStringValue(),
	}
}
