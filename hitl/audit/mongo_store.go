package audit

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore keeps records as documents keyed by request id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore uses an existing collection. Disconnect is a no-op for stores
// built this way.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// ConnectMongo dials uri and ensures the collection's indexes.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if collection == "" {
		collection = TableName
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("audit: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("audit: ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// EnsureIndexes mirrors the relational indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, indexModels())
	if err != nil {
		return fmt.Errorf("audit: create indexes: %w", err)
	}
	return nil
}

func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "execution_id", Value: 1}}, Options: options.Index().SetName("idx_human_request_audit_execution")},
		{Keys: bson.D{{Key: "outcome", Value: 1}}, Options: options.Index().SetName("idx_human_request_audit_outcome")},
		{Keys: bson.D{{Key: "created_at", Value: -1}}, Options: options.Index().SetName("idx_human_request_audit_created")},
	}
}

func (s *MongoStore) Create(ctx context.Context, rec Record) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("audit: create %s: %w", rec.RequestID, err)
	}
	return nil
}

func (s *MongoStore) Resolve(ctx context.Context, rec Record) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": rec.RequestID}, resolveUpdate(rec), options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("audit: resolve %s: %w", rec.RequestID, err)
	}
	return nil
}

// resolveUpdate sets the outcome fields and fills the rest only on insert.
func resolveUpdate(rec Record) bson.M {
	return bson.M{
		"$set": bson.M{
			"outcome":     rec.Outcome,
			"waited_ms":   rec.WaitedMillis,
			"resolved_at": rec.ResolvedAt,
		},
		"$setOnInsert": bson.M{
			"kind":            rec.Kind,
			"execution_id":    rec.ExecutionID,
			"task_id":         rec.TaskID,
			"agent_id":        rec.AgentID,
			"agent_name":      rec.AgentName,
			"task_name":       rec.TaskName,
			"prompt":          rec.Prompt,
			"timeout_seconds": rec.TimeoutSeconds,
			"created_at":      rec.CreatedAt,
		},
	}
}

func (s *MongoStore) Get(ctx context.Context, requestID string) (Record, error) {
	var rec Record
	err := s.coll.FindOne(ctx, bson.M{"_id": requestID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("audit: get %s: %w", requestID, err)
	}
	return rec, nil
}

func (s *MongoStore) List(ctx context.Context, f Filter) ([]Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(f.limit()))

	cur, err := s.coll.Find(ctx, listFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	var recs []Record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("audit: list decode: %w", err)
	}
	return recs, nil
}

func listFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.ExecutionID != "" {
		filter["execution_id"] = f.ExecutionID
	}
	if f.Outcome != "" {
		filter["outcome"] = f.Outcome
	}
	return filter
}

// Disconnect closes the client opened by ConnectMongo.
func (s *MongoStore) Disconnect(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping checks the client opened by ConnectMongo.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}
