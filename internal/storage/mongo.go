package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/apperr"
	"github.com/hyperjump/lookalike/internal/models"
)

const (
	defaultMongoDatabase   = "lookalike"
	defaultMongoCollection = "embeddings"
	mongoDisconnectTimeout = 5 * time.Second
)

// MongoOptions configures NewMongoStore.
type MongoOptions struct {
	URI            string
	Database       string // empty uses the database named in URI, then "lookalike"
	Collection     string
	ConnectTimeout time.Duration
	Dimensions     int
}

// MongoStore reads documents shaped {_id, embedding: [number], imageUrl} and can
// score them server-side with an aggregation pipeline.
type MongoStore struct {
	client     *mongo.Client
	coll       *mongo.Collection
	dimensions int
	logger     *zap.Logger
}

// mongoItem is the on-disk document. _id may be an ObjectID or a string.
type mongoItem struct {
	ID        any       `bson:"_id"`
	Embedding []float64 `bson:"embedding"`
	ImageURL  string    `bson:"imageUrl"`
}

type mongoHit struct {
	ID         any     `bson:"_id"`
	ImageURL   string  `bson:"imageUrl"`
	Similarity float64 `bson:"similarity"`
}

// NewMongoStore connects to MongoDB and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, opts MongoOptions, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.URI == "" {
		return nil, fmt.Errorf("%w: mongo uri is required", apperr.ErrStoreUnavailable)
	}
	database := opts.Database
	if database == "" {
		if cs, err := connstring.ParseAndValidate(opts.URI); err == nil {
			database = cs.Database
		}
	}
	if database == "" {
		database = defaultMongoDatabase
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultMongoCollection
	}

	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout)
		clientOpts.SetServerSelectionTimeout(opts.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", apperr.ErrStoreUnavailable, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %v", apperr.ErrStoreUnavailable, err)
	}
	logger.Info("connected to mongo", zap.String("database", database), zap.String("collection", collection))
	return &MongoStore{
		client:     client,
		coll:       client.Database(database).Collection(collection),
		dimensions: opts.Dimensions,
		logger:     logger,
	}, nil
}

// Type returns the store type identifier.
func (s *MongoStore) Type() string {
	return TypeMongo
}

// FetchAll returns every document ordered by _id. A document that does not decode
// into the typed shape fails the call.
func (s *MongoStore) FetchAll(ctx context.Context) ([]*models.StoredItem, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, s.readError(err)
	}
	defer cursor.Close(ctx)

	items := make([]*models.StoredItem, 0)
	for cursor.Next(ctx) {
		var doc mongoItem
		if err := cursor.Decode(&doc); err != nil {
			s.logger.Error("malformed stored document", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidItem, err)
		}
		item := doc.toItem()
		if err := item.Validate(0); err != nil {
			s.logger.Error("invalid stored document", zap.String("id", item.ID), zap.Error(err))
			return nil, err
		}
		items = append(items, item)
	}
	if err := cursor.Err(); err != nil {
		return nil, s.readError(err)
	}
	return items, nil
}

// SearchSimilar scores documents inside MongoDB by raw dot product and returns the top k.
// Documents whose embedding length differs from the query fail the call before scoring,
// because $zip would otherwise silently truncate.
func (s *MongoStore) SearchSimilar(ctx context.Context, query []float32, k int) ([]*models.RankedResult, error) {
	if k <= 0 {
		return []*models.RankedResult{}, nil
	}
	mismatched, err := s.coll.CountDocuments(ctx, dimensionMismatchFilter(len(query)))
	if err != nil {
		return nil, s.readError(err)
	}
	if mismatched > 0 {
		return nil, fmt.Errorf("%w: %d stored documents do not have %d dimensions",
			apperr.ErrDimensionMismatch, mismatched, len(query))
	}

	cursor, err := s.coll.Aggregate(ctx, similarityPipeline(query, k))
	if err != nil {
		return nil, s.readError(err)
	}
	defer cursor.Close(ctx)

	results := make([]*models.RankedResult, 0, k)
	for cursor.Next(ctx) {
		var hit mongoHit
		if err := cursor.Decode(&hit); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidItem, err)
		}
		results = append(results, &models.RankedResult{
			ID:         idString(hit.ID),
			DisplayURL: hit.ImageURL,
			Score:      hit.Similarity,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, s.readError(err)
	}
	return results, nil
}

// similarityPipeline computes sum(embedding[i] * query[i]) per document, sorts by it
// descending with _id as tie-break, and keeps the top k.
func similarityPipeline(query []float32, k int) mongo.Pipeline {
	q := make(bson.A, len(query))
	for i, v := range query {
		q[i] = float64(v)
	}
	product := bson.D{{Key: "$multiply", Value: bson.A{
		bson.D{{Key: "$arrayElemAt", Value: bson.A{"$$this", 0}}},
		bson.D{{Key: "$arrayElemAt", Value: bson.A{"$$this", 1}}},
	}}}
	similarity := bson.D{{Key: "$reduce", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$zip", Value: bson.D{{Key: "inputs", Value: bson.A{"$embedding", q}}}}}},
		{Key: "initialValue", Value: 0},
		{Key: "in", Value: bson.D{{Key: "$add", Value: bson.A{"$$value", product}}}},
	}}}
	return mongo.Pipeline{
		{{Key: "$addFields", Value: bson.D{{Key: "similarity", Value: similarity}}}},
		{{Key: "$sort", Value: bson.D{{Key: "similarity", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: int64(k)}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "imageUrl", Value: 1},
			{Key: "similarity", Value: 1},
		}}},
	}
}

// dimensionMismatchFilter matches documents whose embedding is missing or not of length d.
func dimensionMismatchFilter(d int) bson.D {
	size := bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$embedding", bson.A{}}}}}}
	return bson.D{{Key: "$expr", Value: bson.D{{Key: "$ne", Value: bson.A{size, d}}}}}
}

// Get returns the document with the given id.
func (s *MongoStore) Get(ctx context.Context, id string) (*models.StoredItem, error) {
	var doc mongoItem
	err := s.coll.FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, s.readError(err)
	}
	return doc.toItem(), nil
}

// Upsert replaces or inserts each item by id. Vectors must match the configured
// length, or else the length of a stored document.
func (s *MongoStore) Upsert(ctx context.Context, items []*models.StoredItem) error {
	want, err := s.collectionDimensions(ctx)
	if err != nil {
		return err
	}
	if _, err := models.ValidateBatch(items, want); err != nil {
		return err
	}
	for _, item := range items {
		doc := toDocument(item)
		_, err := s.coll.ReplaceOne(ctx, idFilter(item.ID), doc, options.Replace().SetUpsert(true))
		if err != nil {
			return s.readError(err)
		}
	}
	return nil
}

// Replace deletes every document and inserts items. Unlike the SQLite store this is
// not atomic: a failure part way leaves a partial collection.
func (s *MongoStore) Replace(ctx context.Context, items []*models.StoredItem) error {
	if _, err := models.ValidateBatch(items, s.dimensions); err != nil {
		return err
	}
	docs := make([]any, len(items))
	for i, item := range items {
		docs[i] = toDocument(item)
	}
	if _, err := s.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return s.readError(err)
	}
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return s.readError(err)
	}
	return nil
}

// collectionDimensions returns the configured length, else the embedding length of
// any stored document, else 0 for an empty collection.
func (s *MongoStore) collectionDimensions(ctx context.Context) (int, error) {
	if s.dimensions > 0 {
		return s.dimensions, nil
	}
	var doc mongoItem
	err := s.coll.FindOne(ctx, bson.D{}, options.FindOne().SetProjection(bson.D{{Key: "embedding", Value: 1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, s.readError(err)
	}
	return len(doc.Embedding), nil
}

// Delete removes a document by id.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return s.readError(err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
	}
	return nil
}

// Count returns the number of documents.
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, s.readError(err)
	}
	return n, nil
}

// Ping checks the connection to the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return s.readError(err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) readError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
}

// toItem narrows the embedding to float32. Values written by toDocument survive
// unchanged; wider values from other writers are rounded.
func (d *mongoItem) toItem() *models.StoredItem {
	vec := make([]float32, len(d.Embedding))
	for i, v := range d.Embedding {
		vec[i] = float32(v)
	}
	return &models.StoredItem{ID: idString(d.ID), Vector: vec, DisplayURL: d.ImageURL}
}

func toDocument(item *models.StoredItem) bson.D {
	emb := make(bson.A, len(item.Vector))
	for i, v := range item.Vector {
		emb[i] = float64(v)
	}
	var id any = item.ID
	if oid, err := primitive.ObjectIDFromHex(item.ID); err == nil {
		id = oid
	}
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "embedding", Value: emb},
		{Key: "imageUrl", Value: item.DisplayURL},
	}
}

// idFilter matches either an ObjectID or a string _id for the same textual id.
func idFilter(id string) bson.D {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{oid, id}}}}}
	}
	return bson.D{{Key: "_id", Value: id}}
}

func idString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
