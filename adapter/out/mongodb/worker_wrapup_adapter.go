package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

const (
	collectionWrapups = "wrapup_reports"

	// reports above this size are stored gzip-compressed
	compressionThreshold = 2048
)

// WrapupAdapter implements out.WrapupRepository using MongoDB.
type WrapupAdapter struct {
	collection *mongo.Collection
}

var _ out.WrapupRepository = (*WrapupAdapter)(nil)

func NewWrapupAdapter(db *mongo.Database) *WrapupAdapter {
	return &WrapupAdapter{collection: db.Collection(collectionWrapups)}
}

// EnsureIndexes creates the id and per-account listing indexes.
func (a *WrapupAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "account_id", Value: 1},
				{Key: "generated_at", Value: -1},
			},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type wrapupDocument struct {
	ID          string    `bson:"id"`
	AccountID   int64     `bson:"account_id"`
	ReportType  string    `bson:"report_type"`
	EmailCount  int       `bson:"email_count"`
	Content     []byte    `bson:"content"`
	Compressed  bool      `bson:"is_compressed"`
	WindowStart time.Time `bson:"window_start"`
	WindowEnd   time.Time `bson:"window_end"`
	GeneratedAt time.Time `bson:"generated_at"`
}

func (a *WrapupAdapter) Create(ctx context.Context, r *domain.WrapupReport) error {
	doc, err := toDocument(r)
	if err != nil {
		return fmt.Errorf("failed to convert wrapup report: %w", err)
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return out.ErrDuplicate
		}
		return fmt.Errorf("failed to save wrapup report: %w", err)
	}
	return nil
}

func (a *WrapupAdapter) ListRecent(ctx context.Context, accountID int64, limit int) ([]*domain.WrapupReport, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "generated_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{"account_id": accountID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list wrapup reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []*domain.WrapupReport
	for cursor.Next(ctx) {
		var doc wrapupDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode wrapup report: %w", err)
		}
		report, err := toEntity(&doc)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, cursor.Err()
}

func toDocument(r *domain.WrapupReport) (*wrapupDocument, error) {
	content := []byte(r.Content)
	compressed := false
	if len(content) > compressionThreshold {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(content); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		content, compressed = buf.Bytes(), true
	}

	return &wrapupDocument{
		ID:          r.ID,
		AccountID:   r.AccountID,
		ReportType:  string(r.Kind),
		EmailCount:  r.EmailCount,
		Content:     content,
		Compressed:  compressed,
		WindowStart: r.WindowStart,
		WindowEnd:   r.WindowEnd,
		GeneratedAt: r.GeneratedAt,
	}, nil
}

func toEntity(doc *wrapupDocument) (*domain.WrapupReport, error) {
	content := doc.Content
	if doc.Compressed {
		zr, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("wrapup %s: %w", doc.ID, err)
		}
		defer zr.Close()
		if content, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("wrapup %s: %w", doc.ID, err)
		}
	}

	return &domain.WrapupReport{
		ID:          doc.ID,
		AccountID:   doc.AccountID,
		Kind:        domain.WrapupKind(doc.ReportType),
		EmailCount:  doc.EmailCount,
		Content:     string(content),
		WindowStart: doc.WindowStart.UTC(),
		WindowEnd:   doc.WindowEnd.UTC(),
		GeneratedAt: doc.GeneratedAt.UTC(),
	}, nil
}
