// Package store provides the MongoDB-backed BookingStore.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homefixr/dispatch/core/model"
	corestore "github.com/homefixr/dispatch/core/store"
)

// MongoStore persists bookings in a single collection, one document per
// booking keyed by _id. Optimistic concurrency rides on the version field:
// CompareAndSwap replaces the document only when the stored version still
// matches the one the caller read.
type MongoStore struct {
	col *mongo.Collection
}

var _ corestore.BookingStore = (*MongoStore)(nil)

// NewMongoStore wraps db's "bookings" collection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("bookings")}
}

// EnsureIndexes creates the secondary indexes used by List filters. Safe to
// call on every startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		{Keys: bson.D{{Key: "technician_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

func (s *MongoStore) Create(ctx context.Context, b *model.Booking) error {
	b.Version = 1
	_, err := s.col.InsertOne(ctx, b)
	if mongo.IsDuplicateKeyError(err) {
		return corestore.ErrDuplicateID
	}
	return err
}

func (s *MongoStore) Get(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, corestore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *MongoStore) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, b *model.Booking) error {
	next := b.Clone()
	next.ID = id
	next.Version = expectedVersion + 1
	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": id, "version": expectedVersion}, next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing booking from a concurrent writer.
		n, err := s.col.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return corestore.ErrNotFound
		}
		return corestore.ErrVersionConflict
	}
	b.Version = next.Version
	return nil
}

func (s *MongoStore) List(ctx context.Context, f corestore.ListFilter) ([]*model.Booking, error) {
	filter := bson.M{}
	if f.CustomerID != "" {
		filter["customer_id"] = f.CustomerID
	}
	if f.TechnicianID != "" {
		filter["technician_id"] = f.TechnicianID
	}
	if f.Status != nil {
		filter["status"] = *f.Status
	}
	cursor, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var res []*model.Booking
	if err := cursor.All(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}
