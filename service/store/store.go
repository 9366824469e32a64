package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/b-harvest/gravity-vault/config"
	"github.com/b-harvest/gravity-vault/schema"
)

type Service struct {
	cfg config.MongoDBConfig
	mc  *mongo.Client
}

func NewService(cfg config.MongoDBConfig, mc *mongo.Client) *Service {
	return &Service{cfg, mc}
}

func (s *Service) JournalCollection() *mongo.Collection {
	return s.mc.Database(s.cfg.DB).Collection(s.cfg.JournalCollection)
}

func (s *Service) EnsureDBIndexes(ctx context.Context) ([]string, error) {
	var res []string
	for _, x := range []struct {
		coll *mongo.Collection
		is   []mongo.IndexModel
	}{
		{s.JournalCollection(), []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.JournalSequenceKey, Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: schema.JournalIDKey, Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: schema.JournalCallerKey, Value: 1}}},
		}},
	} {
		names, err := x.coll.Indexes().CreateMany(ctx, x.is)
		if err != nil {
			return res, err
		}
		res = append(res, names...)
	}
	return res, nil
}

// LatestSequence returns the sequence of the last journal entry, or 0 if the
// journal is empty.
func (s *Service) LatestSequence(ctx context.Context) (int64, error) {
	var e schema.JournalEntry
	if err := s.JournalCollection().FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.M{schema.JournalSequenceKey: -1})).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}
	return e.Sequence, nil
}

func (s *Service) AppendEntry(ctx context.Context, e schema.JournalEntry) error {
	if _, err := s.JournalCollection().InsertOne(ctx, e); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("journal entry #%d already exists: %w", e.Sequence, err)
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// IterateEntries calls cb for every journal entry in sequence order.
func (s *Service) IterateEntries(ctx context.Context, cb func(schema.JournalEntry) (stop bool, err error)) error {
	cur, err := s.JournalCollection().Find(ctx, bson.M{},
		options.Find().SetSort(bson.M{schema.JournalSequenceKey: 1}))
	if err != nil {
		return fmt.Errorf("find journal entries: %w", err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var e schema.JournalEntry
		if err := cur.Decode(&e); err != nil {
			return fmt.Errorf("decode journal entry: %w", err)
		}
		stop, err := cb(e)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return cur.Err()
}
