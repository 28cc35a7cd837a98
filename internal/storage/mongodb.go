// mongodb.go - MongoDB persistence for scan records

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
	"go.uber.org/zap"

	"github.com/bosocmputer/invoice_scanner/internal/common"
	"github.com/bosocmputer/invoice_scanner/internal/extract"
)

const scansCollection = "scans"

// ErrScanNotFound is returned by GetScan for an unknown id.
var ErrScanNotFound = errors.New("scan not found")

// AttemptRecord is one provider call as persisted.
type AttemptRecord struct {
	Provider   string `bson:"provider" json:"provider"`
	DurationMS int64  `bson:"duration_ms" json:"durationMs"`
	Category   string `bson:"category,omitempty" json:"category,omitempty"`
	Error      string `bson:"error,omitempty" json:"error,omitempty"`
}

// ScanRecord is a completed scan.
type ScanRecord struct {
	ID         string            `bson:"_id" json:"id"`
	File       string            `bson:"file" json:"file"`
	ClientName string            `bson:"client_name" json:"clientName"`
	Preference string            `bson:"preference" json:"preference"`
	Provider   string            `bson:"provider" json:"provider"`
	Model      string            `bson:"model" json:"model"`
	RawText    string            `bson:"raw_text" json:"rawText"`
	Record     extract.Record    `bson:"record" json:"record"`
	Warnings   []string          `bson:"warnings" json:"warnings"`
	Attempts   []AttemptRecord   `bson:"attempts" json:"attempts"`
	TokenUsage common.TokenUsage `bson:"token_usage" json:"tokenUsage"`
	CreatedAt  time.Time         `bson:"created_at" json:"createdAt"`
}

// NewScanID returns a fresh scan id.
func NewScanID() string {
	return uuid.NewString()
}

// ScanRepository persists scan records.
type ScanRepository interface {
	SaveScan(ctx context.Context, rec *ScanRecord) error
	GetScan(ctx context.Context, id string) (*ScanRecord, error)
}

// MongoStore keeps scan records in MongoDB
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// ConnectMongo connects and pings within 10 seconds.
func ConnectMongo(ctx context.Context, uri, dbName string, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB", zap.String("database", dbName))
	return &MongoStore{client: client, db: client.Database(dbName), logger: logger}, nil
}

// SaveScan inserts rec, assigning an id and timestamp when missing.
func (s *MongoStore) SaveScan(ctx context.Context, rec *ScanRecord) error {
	if rec.ID == "" {
		rec.ID = NewScanID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.Collection(scansCollection).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to save scan %s: %w", rec.ID, err)
	}
	return nil
}

// GetScan retrieves a scan by id.
func (s *MongoStore) GetScan(ctx context.Context, id string) (*ScanRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rec ScanRecord
	err := s.db.Collection(scansCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrScanNotFound
		}
		return nil, fmt.Errorf("failed to query scan %s: %w", id, err)
	}
	return &rec, nil
}

// Close closes MongoDB connection
func (s *MongoStore) Close() {
	if s == nil || s.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		s.logger.Warn("failed to close MongoDB connection", zap.Error(err))
		return
	}
	s.logger.Info("MongoDB connection closed")
}
