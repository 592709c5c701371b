package store

import (
	"context"
	"crypto/rsa"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"olafchat/internal/crypto"
)

// identityDoc is the Mongo document for a client's persisted long-term
// identity.
type identityDoc struct {
	Name        string `bson:"name"`
	Fingerprint string `bson:"fingerprint"`
	PrivateKey  []byte `bson:"private_key"` // PKCS8 DER
}

// IdentityStore persists a client's long-term RSA key pair across
// restarts, keyed by a local display name, so its fingerprint stays
// stable. Optional: a client with no IdentityStore configured generates
// a fresh key pair every run instead.
type IdentityStore struct {
	collection *mongo.Collection
}

func NewIdentityStore(db *mongo.Database) *IdentityStore {
	return &IdentityStore{collection: db.Collection("client_identities")}
}

// Load returns the stored key pair for name, or (nil, false, nil) if
// none exists yet.
func (s *IdentityStore) Load(ctx context.Context, name string) (*rsa.PrivateKey, bool, error) {
	var doc identityDoc
	err := s.collection.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("identity store: load %q: %w", name, err)
	}
	priv, err := crypto.DecodePrivateKey(doc.PrivateKey)
	if err != nil {
		return nil, false, err
	}
	return priv, true, nil
}

// Save persists a client's key pair under name, creating or replacing
// the existing document.
func (s *IdentityStore) Save(ctx context.Context, name string, priv *rsa.PrivateKey) error {
	der, err := crypto.EncodePrivateKey(priv)
	if err != nil {
		return err
	}
	fp, err := crypto.Fingerprint(&priv.PublicKey)
	if err != nil {
		return err
	}
	_, err = s.collection.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$set": identityDoc{Name: name, Fingerprint: fp, PrivateKey: der}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("identity store: save %q: %w", name, err)
	}
	return nil
}
