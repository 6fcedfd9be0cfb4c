package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "documents"

// mongoDocument is the stored shape. The full path is the _id, so Create is
// a plain insert that fails on duplicate key.
type mongoDocument struct {
	Path       string    `bson:"_id"`
	Collection string    `bson:"collection"`
	ID         string    `bson:"id"`
	Data       bson.M    `bson:"data"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// MongoStore implements DocumentStore on a single MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri, verifies the connection and ensures the
// collection index used by FindByField ordering.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	coll := client.Database(database).Collection(mongoCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "collection", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("creating mongodb index: %w", err)
	}

	return NewMongoStoreWithCollection(client, coll), nil
}

// NewMongoStoreWithCollection wraps an already connected client and
// collection. Close disconnects client.
func NewMongoStoreWithCollection(client *mongo.Client, coll *mongo.Collection) *MongoStore {
	return &MongoStore{client: client, coll: coll}
}

func (s *MongoStore) Get(ctx context.Context, path string) (*Document, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}

	var md mongoDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": path}).Decode(&md)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding document %s: %w", path, err)
	}

	return md.document(), nil
}

func (s *MongoStore) FindByField(ctx context.Context, collection, field string, value any, limit int) ([]*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, bson.M{"collection": collection, "data." + field: value}, opts)
	if err != nil {
		return nil, fmt.Errorf("querying %s by %s: %w", collection, field, err)
	}

	var docs []mongoDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding %s documents: %w", collection, err)
	}

	out := make([]*Document, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].document())
	}
	return out, nil
}

func (s *MongoStore) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	collection, id, err := splitDocPath(path)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	set := bson.M{"collection": collection, "id": id, "updated_at": now}
	if merge {
		for k, v := range data {
			set["data."+k] = v
		}
	} else {
		set["data"] = bson.M(data)
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}
	if merge && len(data) == 0 {
		// Nothing to merge; still make sure an inserted document has a data object.
		update["$setOnInsert"] = bson.M{"created_at": now, "data": bson.M{}}
	}

	_, err = s.coll.UpdateOne(ctx, bson.M{"_id": path}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", path, err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, path string, data map[string]any) (bool, error) {
	collection, id, err := splitDocPath(path)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	_, err = s.coll.InsertOne(ctx, mongoDocument{
		Path:       path,
		Collection: collection,
		ID:         id,
		Data:       bson.M(data),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("creating document %s: %w", path, err)
	}
	return true, nil
}

func (s *MongoStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	id := uuid.NewString()
	created, err := s.Create(ctx, DocPath(collection, id), data)
	if err != nil {
		return "", err
	}
	if !created {
		return "", fmt.Errorf("adding to %s: generated id %s already taken", collection, id)
	}
	return id, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (md *mongoDocument) document() *Document {
	data := map[string]any(md.Data)
	if data == nil {
		data = map[string]any{}
	}
	return &Document{ID: md.ID, Path: md.Path, Data: data}
}
