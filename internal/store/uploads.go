package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UploadRecord is one entry in the permanent upload metadata ledger: the
// blob bytes themselves stay on local disk, opaque and unauthenticated
// per §4.7; this only tracks bookkeeping for observability.
type UploadRecord struct {
	Name         string    `bson:"name"`
	OriginalName string    `bson:"original_name"`
	Size         int64     `bson:"size"`
	ContentType  string    `bson:"content_type"`
	UploadedAt   time.Time `bson:"uploaded_at"`
}

// UploadLedger records file-transfer metadata in Mongo.
type UploadLedger struct {
	collection *mongo.Collection
}

func NewUploadLedger(db *mongo.Database) *UploadLedger {
	return &UploadLedger{collection: db.Collection("upload_metadata")}
}

// Record inserts a new upload's metadata.
func (l *UploadLedger) Record(ctx context.Context, rec UploadRecord) error {
	if _, err := l.collection.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("upload ledger: record %q: %w", rec.Name, err)
	}
	return nil
}

// Lookup returns metadata for a previously uploaded blob name.
func (l *UploadLedger) Lookup(ctx context.Context, name string) (UploadRecord, bool, error) {
	var rec UploadRecord
	err := l.collection.FindOne(ctx, bson.M{"name": name}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return UploadRecord{}, false, nil
	}
	if err != nil {
		return UploadRecord{}, false, fmt.Errorf("upload ledger: lookup %q: %w", name, err)
	}
	return rec, true, nil
}
