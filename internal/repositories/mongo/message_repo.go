package mongo

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const MessagesCollection = "messages"

type MessageRepository interface {
	// Upsert stores m once per Key; replays of the same message are no-ops.
	Upsert(ctx context.Context, m *models.ChatMessage) error
	GetByKey(ctx context.Context, key string) (*models.ChatMessage, error)
	// Recent returns the newest limit messages, oldest first.
	Recent(ctx context.Context, limit int64) ([]models.ChatMessage, error)
}

type messageRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

// NewMessageRepo keeps archived messages for ttl; zero keeps them forever.
func NewMessageRepo(db *mongo.Database, ttl time.Duration) MessageRepository {
	return &messageRepo{col: db.Collection(MessagesCollection), ttl: ttl}
}

func (r *messageRepo) Upsert(ctx context.Context, m *models.ChatMessage) error {
	if m.Key == "" {
		return errors.New("message key is required")
	}
	now := time.Now().UTC()
	if m.ArchivedAt.IsZero() {
		m.ArchivedAt = now
	}
	if r.ttl > 0 && m.ExpiresAt.IsZero() {
		m.ExpiresAt = now.Add(r.ttl)
	}

	_, err := r.col.UpdateOne(ctx,
		bson.M{"key": m.Key},
		bson.M{"$setOnInsert": m},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return nil // concurrent archivers raced on the same key
	}
	return err
}

func (r *messageRepo) GetByKey(ctx context.Context, key string) (*models.ChatMessage, error) {
	var m models.ChatMessage
	err := r.col.FindOne(ctx, bson.M{"key": key}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepo) Recent(ctx context.Context, limit int64) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	cur, err := r.col.Find(ctx,
		bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "key", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ChatMessage
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
