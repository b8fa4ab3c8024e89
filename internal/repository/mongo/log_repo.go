// internal/repository/mongo/log_repo.go
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/repository"
)

const logCollectionName = "tables"

// logDocument is the stored shape: users/{userId}/tables/{logId} flattened
// into one collection keyed by (userId, logId).
type logDocument struct {
	UserID           string `bson:"userId"`
	domain.LogRecord `bson:",inline"`
}

var summaryProjection = bson.M{
	"_id":        0,
	"logId":      1,
	"tableName":  1,
	"date":       1,
	"lastOpened": 1,
}

// mongoLogRepository implements repository.LogRepository using MongoDB.
type mongoLogRepository struct {
	collection *mongo.Collection
	users      auth.Provider
	now        func() time.Time
}

// NewMongoLogRepository creates a log repository scoped to the user reported by users.
func NewMongoLogRepository(db *mongo.Database, users auth.Provider) repository.LogRepository {
	return &mongoLogRepository{
		collection: db.Collection(logCollectionName),
		users:      users,
		now:        time.Now,
	}
}

func (r *mongoLogRepository) userID(ctx context.Context) (string, error) {
	u, ok := r.users.CurrentUser(ctx)
	if !ok {
		return "", repository.ErrUnauthenticated
	}
	return u.ID, nil
}

// Get retrieves one log by id. A missing log is not an error.
func (r *mongoLogRepository) Get(ctx context.Context, id string) (*domain.LogRecord, error) {
	uid, err := r.userID(ctx)
	if err != nil {
		return nil, err
	}

	var doc logDocument
	err = r.collection.FindOne(ctx, bson.M{"userId": uid, "logId": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get log %s: %w", id, err)
	}
	return &doc.LogRecord, nil
}

// Put upserts the full record. LastOpened is always taken from the store's clock.
func (r *mongoLogRepository) Put(ctx context.Context, record domain.LogRecord) (domain.LogRecord, error) {
	uid, err := r.userID(ctx)
	if err != nil {
		return domain.LogRecord{}, err
	}
	if record.ID == "" {
		return domain.LogRecord{}, errors.New("log id is required")
	}

	// BSON dates have millisecond precision.
	record.LastOpened = r.now().UTC().Truncate(time.Millisecond)

	filter := bson.M{"userId": uid, "logId": record.ID}
	doc := logDocument{UserID: uid, LogRecord: record}
	_, err = r.collection.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return domain.LogRecord{}, fmt.Errorf("put log %s: %w", record.ID, err)
	}
	return record, nil
}

// Delete removes the log. Deleting a missing log succeeds.
func (r *mongoLogRepository) Delete(ctx context.Context, id string) error {
	uid, err := r.userID(ctx)
	if err != nil {
		return err
	}
	if _, err := r.collection.DeleteOne(ctx, bson.M{"userId": uid, "logId": id}); err != nil {
		return fmt.Errorf("delete log %s: %w", id, err)
	}
	return nil
}

// List returns the user's log summaries, most recently opened first.
func (r *mongoLogRepository) List(ctx context.Context) ([]domain.LogSummary, error) {
	uid, err := r.userID(ctx)
	if err != nil {
		return nil, err
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "lastOpened", Value: -1}}).
		SetProjection(summaryProjection)

	cursor, err := r.collection.Find(ctx, bson.M{"userId": uid}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []domain.LogSummary
	if err = cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	if summaries == nil {
		summaries = []domain.LogSummary{}
	}
	return summaries, nil
}

// All returns every log of the user in full, most recently opened first.
func (r *mongoLogRepository) All(ctx context.Context) ([]domain.LogRecord, error) {
	uid, err := r.userID(ctx)
	if err != nil {
		return nil, err
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "lastOpened", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"userId": uid}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []logDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}
	records := make([]domain.LogRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.LogRecord)
	}
	return records, nil
}

// EnsureLogIndexes creates the indexes of the tables collection.
// Call this once during application startup.
func EnsureLogIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "logId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "lastOpened", Value: -1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// LogCollection returns the collection backing NewMongoLogRepository.
func LogCollection(db *mongo.Database) *mongo.Collection {
	return db.Collection(logCollectionName)
}
