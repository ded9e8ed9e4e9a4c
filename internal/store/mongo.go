package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps episode metadata in a collection and audio in GridFS,
// since a full podcast easily exceeds the document size limit.
type MongoStore struct {
	mongoClient *mongo.Client
	collection  *mongo.Collection
	audio       *gridfs.Bucket
	logger      zerolog.Logger
}

// NewMongoStore creates a MongoStore. Call Connect before use.
func NewMongoStore(connectionString, databaseName, collectionName string, logger zerolog.Logger) *MongoStore {
	logger = logger.With().Str("component", "mongo_store").Logger()

	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		// Surfaced by Connect
		logger.Error().Err(err).Msg("Failed to create mongo client")
		return &MongoStore{logger: logger}
	}

	database := mongoClient.Database(databaseName)
	bucket, err := gridfs.NewBucket(database, options.GridFSBucket().SetName(collectionName+"_audio"))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create gridfs bucket")
		return &MongoStore{logger: logger}
	}

	return &MongoStore{
		mongoClient: mongoClient,
		collection:  database.Collection(collectionName),
		audio:       bucket,
		logger:      logger,
	}
}

// Connect verifies connectivity and ensures the id index exists
func (s *MongoStore) Connect(ctx context.Context) error {
	if s.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	if err := s.mongoClient.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create episode index: %w", err)
	}
	return nil
}

func (s *MongoStore) Save(ctx context.Context, episode *Episode) error {
	if s.collection == nil {
		return fmt.Errorf("collection not initialized")
	}

	now := time.Now().UTC()
	doc := episode.Clone()
	doc.UpdatedAt = now
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	// created_at is only written on insert
	set, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal episode: %w", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(set, &fields); err != nil {
		return fmt.Errorf("marshal episode: %w", err)
	}
	delete(fields, "created_at")

	filter := bson.M{"id": doc.ID}
	update := bson.M{
		"$set":         fields,
		"$setOnInsert": bson.M{"created_at": doc.CreatedAt},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("save episode: %w", err)
	}

	if doc.HasAudio() {
		if err := s.replaceAudio(doc.ID, doc.Audio); err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoStore) replaceAudio(id string, audio []byte) error {
	if err := s.audio.Delete(id); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("delete previous audio: %w", err)
	}
	if err := s.audio.UploadFromStreamWithID(id, id+".wav", bytes.NewReader(audio)); err != nil {
		return fmt.Errorf("upload audio: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Episode, error) {
	if s.collection == nil {
		return nil, fmt.Errorf("collection not initialized")
	}

	var episode Episode
	err := s.collection.FindOne(ctx, bson.M{"id": id}).Decode(&episode)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find episode: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.audio.DownloadToStream(id, &buf); err != nil {
		if !errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("download audio: %w", err)
		}
	} else {
		episode.Audio = buf.Bytes()
	}

	return &episode, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if s.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	return s.mongoClient.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.mongoClient == nil {
		return nil
	}
	return s.mongoClient.Disconnect(ctx)
}
