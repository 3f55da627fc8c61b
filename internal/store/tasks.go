package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/drosic/taskman/internal/models"
)

const tasksCollection = "tasks"

// ListFilter narrows and orders a task listing. Zero value lists every
// task the owner has, in insertion order.
type ListFilter struct {
	Completed *bool
	SortField string // bson field name; empty means no explicit sort
	SortDesc  bool
	Limit     int64
	Skip      int64
}

// Tasks handles task document CRUD in MongoDB. Every read and write below
// the insert filters on both _id and owner in a single predicate, so a
// foreign task is indistinguishable from a missing one.
type Tasks struct {
	col *mongo.Collection
}

func NewTasks(db *mongo.Database) *Tasks {
	return &Tasks{col: db.Collection(tasksCollection)}
}

func (s *Tasks) Insert(ctx context.Context, t *models.Task) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	res, err := s.col.InsertOne(ctx, t)
	if err != nil {
		return err
	}
	t.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *Tasks) List(ctx context.Context, owner primitive.ObjectID, f ListFilter) ([]models.Task, error) {
	filter := bson.M{"owner": owner}
	if f.Completed != nil {
		filter["completed"] = *f.Completed
	}
	opts := options.Find()
	if f.SortField != "" {
		dir := 1
		if f.SortDesc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: f.SortField, Value: dir}})
	}
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	tasks := []models.Task{}
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Tasks) GetForOwner(ctx context.Context, id, owner primitive.ObjectID) (*models.Task, error) {
	var t models.Task
	err := s.col.FindOne(ctx, bson.M{"_id": id, "owner": owner}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Tasks) UpdateForOwner(ctx context.Context, id, owner primitive.ObjectID, fields bson.M) (*models.Task, error) {
	fields["updated_at"] = time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var t models.Task
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id, "owner": owner}, bson.M{"$set": fields}, opts).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Tasks) DeleteForOwner(ctx context.Context, id, owner primitive.ObjectID) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByOwner purges every task the owner has. Used by account deletion.
func (s *Tasks) DeleteByOwner(ctx context.Context, owner primitive.ObjectID) error {
	_, err := s.col.DeleteMany(ctx, bson.M{"owner": owner})
	return err
}
