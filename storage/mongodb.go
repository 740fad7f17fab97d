package storage

import (
	"context"
	"fmt"
	"time"

	"plotvault/core"
	"plotvault/metrics"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// defaultQueryTimeout bounds individual collection operations on top of the
// caller's context.
const defaultQueryTimeout = 5 * time.Second

// DatasetCursor interface for mocking
type DatasetCursor interface {
	Next(ctx context.Context) bool
	Decode(v interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// DatasetSingleResult interface for mocking
type DatasetSingleResult interface {
	Decode(v interface{}) error
}

// DatasetCollection interface for mocking
type DatasetCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (DatasetCursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) DatasetSingleResult
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// mongoDatasetCursor adapts *mongo.Cursor to DatasetCursor
type mongoDatasetCursor struct {
	*mongo.Cursor
}

func (m *mongoDatasetCursor) Next(ctx context.Context) bool {
	return m.Cursor.Next(ctx)
}

func (m *mongoDatasetCursor) Decode(v interface{}) error {
	return m.Cursor.Decode(v)
}

func (m *mongoDatasetCursor) Err() error {
	return m.Cursor.Err()
}

func (m *mongoDatasetCursor) Close(ctx context.Context) error {
	return m.Cursor.Close(ctx)
}

// mongoDatasetSingleResult adapts *mongo.SingleResult to DatasetSingleResult
type mongoDatasetSingleResult struct {
	*mongo.SingleResult
}

func (m *mongoDatasetSingleResult) Decode(v interface{}) error {
	return m.SingleResult.Decode(v)
}

// mongoDatasetCollection adapts *mongo.Collection to DatasetCollection
type mongoDatasetCollection struct {
	*mongo.Collection
}

func (m *mongoDatasetCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (DatasetCursor, error) {
	cursor, err := m.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &mongoDatasetCursor{Cursor: cursor}, nil
}

func (m *mongoDatasetCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) DatasetSingleResult {
	return &mongoDatasetSingleResult{SingleResult: m.Collection.FindOne(ctx, filter, opts...)}
}

// MongoDB holds the MongoDB client and database
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongoDB creates a new MongoDB connection
func NewMongoDB(uri, dbName string, maxPoolSize uint64, logger *zap.SugaredLogger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).SetMaxPoolSize(maxPoolSize)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB successfully")

	return &MongoDB{
		Client:   client,
		Database: client.Database(dbName),
	}, nil
}

// HealthCheck performs a health check on the MongoDB connection
func (m *MongoDB) HealthCheck(ctx context.Context) error {
	return m.Client.Ping(ctx, nil)
}

// Close disconnects from MongoDB
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// storedRecord pairs a SimpleRecord with its Mongo document id.
type storedRecord struct {
	OID               primitive.ObjectID `bson:"_id,omitempty"`
	core.SimpleRecord `bson:",inline"`
}

// storedChart pairs a PlotlyDataset with its Mongo document id.
type storedChart struct {
	OID                primitive.ObjectID `bson:"_id,omitempty"`
	core.PlotlyDataset `bson:",inline"`
}

// DatasetStorage persists simple records and Plotly charts in MongoDB.
// Both families share one collection; the unique item_id index arbitrates
// concurrent id generation.
type DatasetStorage struct {
	db      *MongoDB
	coll    DatasetCollection
	rawColl *mongo.Collection
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewDatasetStorage creates a new dataset storage handler on the given collection
func NewDatasetStorage(db *MongoDB, collectionName string, logger *zap.SugaredLogger) *DatasetStorage {
	coll := db.Database.Collection(collectionName)
	return &DatasetStorage{
		db:      db,
		coll:    &mongoDatasetCollection{Collection: coll},
		rawColl: coll,
		timeout: defaultQueryTimeout,
		logger:  logger,
	}
}

// ListRecords retrieves simple records with pagination. Chart documents share
// the collection and do not decode as records; they are skipped.
func (s *DatasetStorage) ListRecords(ctx context.Context, limit, skip int) ([]core.SimpleRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetLimit(int64(limit)).SetSkip(int64(skip))
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find records: %w", err)
	}
	defer cursor.Close(ctx)

	// Non-nil slice so an empty listing serializes to [] rather than null.
	records := make([]core.SimpleRecord, 0)
	for cursor.Next(ctx) {
		var sr storedRecord
		if err := cursor.Decode(&sr); err != nil {
			s.logger.Debugw("Skipping non-record document", "error", err)
			continue
		}
		rec := sr.SimpleRecord
		rec.ID = sr.OID.Hex()
		records = append(records, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

// CountRecords returns the total number of documents in the collection
func (s *DatasetStorage) CountRecords(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// GetRecord retrieves a single record by item id
func (s *DatasetStorage) GetRecord(ctx context.Context, itemID int) (*core.SimpleRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sr storedRecord
	err := s.coll.FindOne(ctx, bson.M{"item_id": itemID}).Decode(&sr)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("failed to find record: %w", err)
	}

	rec := sr.SimpleRecord
	rec.ID = sr.OID.Hex()
	return &rec, nil
}

// CreateRecord inserts a new record, assigning the next sequential item id.
// The generated item id and document id are written back to record.
func (s *DatasetStorage) CreateRecord(ctx context.Context, record *core.SimpleRecord) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("create_record", opResult(err)).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	next, err := s.nextItemID(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	record.ItemID = next
	record.CreatedAt = now
	record.UpdatedAt = now

	res, err := s.coll.InsertOne(ctx, storedRecord{SimpleRecord: *record})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateItemID
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid.Hex()
	}

	return nil
}

// UpdateRecord applies the given field changes to a record and stamps
// updated_at. Returns ErrNoChanges when the document was matched but the
// write modified nothing.
func (s *DatasetStorage) UpdateRecord(ctx context.Context, itemID int, changes map[string]interface{}) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("update_record", opResult(err)).Inc()
	}()
	return s.update(ctx, itemID, changes, "record")
}

// DeleteRecord removes a record by item id
func (s *DatasetStorage) DeleteRecord(ctx context.Context, itemID int) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("delete_record", opResult(err)).Inc()
	}()
	return s.delete(ctx, itemID, "record")
}

// ListCharts retrieves all documents carrying a data field. Simple records
// also carry one but hold an object rather than a trace array, so they fail
// to decode and are skipped.
func (s *DatasetStorage) ListCharts(ctx context.Context) ([]core.PlotlyDataset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.coll.Find(ctx, bson.M{"data": bson.M{"$exists": true}})
	if err != nil {
		return nil, fmt.Errorf("failed to find charts: %w", err)
	}
	defer cursor.Close(ctx)

	charts := make([]core.PlotlyDataset, 0)
	for cursor.Next(ctx) {
		var sc storedChart
		if err := cursor.Decode(&sc); err != nil {
			s.logger.Debugw("Skipping non-chart document", "error", err)
			continue
		}
		ch := sc.PlotlyDataset
		ch.ID = sc.OID.Hex()
		charts = append(charts, ch)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate charts: %w", err)
	}

	return charts, nil
}

// CountCharts returns the number of documents carrying a data field
func (s *DatasetStorage) CountCharts(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.coll.CountDocuments(ctx, bson.M{"data": bson.M{"$exists": true}})
	if err != nil {
		return 0, fmt.Errorf("failed to count charts: %w", err)
	}
	return count, nil
}

// GetChart retrieves a single chart by item id
func (s *DatasetStorage) GetChart(ctx context.Context, itemID int) (*core.PlotlyDataset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sc storedChart
	err := s.coll.FindOne(ctx, bson.M{"item_id": itemID}).Decode(&sc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("failed to find chart: %w", err)
	}

	ch := sc.PlotlyDataset
	ch.ID = sc.OID.Hex()
	return &ch, nil
}

// CreateChart inserts a new chart, assigning the next sequential item id.
// The generated item id and document id are written back to chart.
func (s *DatasetStorage) CreateChart(ctx context.Context, chart *core.PlotlyDataset) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("create_chart", opResult(err)).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	next, err := s.nextItemID(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	chart.ItemID = next
	chart.CreatedAt = now
	chart.UpdatedAt = now

	res, err := s.coll.InsertOne(ctx, storedChart{PlotlyDataset: *chart})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateItemID
		}
		return fmt.Errorf("failed to insert chart: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		chart.ID = oid.Hex()
	}

	return nil
}

// UpdateChart applies the given field changes to a chart and stamps updated_at
func (s *DatasetStorage) UpdateChart(ctx context.Context, itemID int, changes map[string]interface{}) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("update_chart", opResult(err)).Inc()
	}()
	return s.update(ctx, itemID, changes, "chart")
}

// DeleteChart removes a chart by item id
func (s *DatasetStorage) DeleteChart(ctx context.Context, itemID int) (err error) {
	defer func() {
		metrics.DatasetOperations.WithLabelValues("delete_chart", opResult(err)).Inc()
	}()
	return s.delete(ctx, itemID, "chart")
}

// HealthCheck pings the underlying connection
func (s *DatasetStorage) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.HealthCheck(ctx)
}

// EnsureIndexes creates the unique item_id index backing id generation
func (s *DatasetStorage) EnsureIndexes(ctx context.Context) error {
	if s.rawColl == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.rawColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "item_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create item_id index: %w", err)
	}

	s.logger.Info("Dataset indexes ensured")
	return nil
}

// Close disconnects the underlying client
func (s *DatasetStorage) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close(ctx)
}

// nextItemID returns 1 + the highest stored item_id, or 1 for an empty
// collection. The unique index turns lost races into ErrDuplicateItemID at
// insert time.
func (s *DatasetStorage) nextItemID(ctx context.Context) (int, error) {
	opts := options.Find().SetSort(bson.D{{Key: "item_id", Value: -1}}).SetLimit(1)
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to find last item id: %w", err)
	}
	defer cursor.Close(ctx)

	next := 1
	if cursor.Next(ctx) {
		var doc struct {
			ItemID int `bson:"item_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return 0, fmt.Errorf("failed to decode last item id: %w", err)
		}
		next = doc.ItemID + 1
	}
	if err := cursor.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate last item id: %w", err)
	}

	return next, nil
}

// update runs the shared exists-then-set flow for both families. The exists
// check uses a count rather than a decode so either family can be matched.
func (s *DatasetStorage) update(ctx context.Context, itemID int, changes map[string]interface{}, kind string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, bson.M{"item_id": itemID})
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", kind, err)
	}
	if n == 0 {
		return ErrDatasetNotFound
	}

	set := bson.M{}
	for k, v := range changes {
		set[k] = v
	}
	set["updated_at"] = time.Now().UTC()

	res, err := s.coll.UpdateOne(ctx, bson.M{"item_id": itemID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	if res.ModifiedCount == 0 {
		return ErrNoChanges
	}

	return nil
}

func (s *DatasetStorage) delete(ctx context.Context, itemID int, kind string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"item_id": itemID})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if res.DeletedCount == 0 {
		return ErrDatasetNotFound
	}

	return nil
}
