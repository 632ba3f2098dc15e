// Package firebaseBackend implements backend.Backend on Firebase: Identity
// Toolkit for email/password accounts, Cloud Firestore for documents and
// live queries, and Cloud Storage for blobs.
package firebaseBackend

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"cloud.google.com/go/firestore"
	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/liveChat/backend"
	"github.com/liveChat/config"
)

const downloadTokenKey = "firebaseStorageDownloadTokens"

type Backend struct {
	firestoreClient *firestore.Client
	identity        *identitytoolkit.Service
	bucket          *gcs.BucketHandle
	bucketName      string
	log             *log.Entry
}

var _ backend.Backend = (*Backend)(nil)

func New(ctx context.Context, cfg config.Firebase) (*Backend, error) {
	firebaseConfig := &firebase.Config{
		ProjectID:     cfg.ProjectID,
		DatabaseURL:   cfg.DatabaseURL,
		StorageBucket: cfg.StorageBucket,
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	firebaseApp, err := firebase.NewApp(ctx, firebaseConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	firestoreClient, err := firebaseApp.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firestore client: %w", err)
	}

	storageClient, err := firebaseApp.Storage(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("initializing storage client: %w", err)
	}

	bucket, err := storageClient.Bucket(cfg.StorageBucket)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("opening bucket %s: %w", cfg.StorageBucket, err)
	}

	identity, err := identitytoolkit.NewService(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("initializing identity toolkit: %w", err)
	}

	return &Backend{
		firestoreClient: firestoreClient,
		identity:        identity,
		bucket:          bucket,
		bucketName:      cfg.StorageBucket,
		log:             log.WithField("component", "firebaseBackend"),
	}, nil
}

func (b *Backend) Close() error {
	return b.firestoreClient.Close()
}

func (b *Backend) Authenticate(ctx context.Context, email, password string) (backend.Identity, error) {
	resp, err := b.identity.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return backend.Identity{}, err
	}

	return backend.Identity{UserID: resp.LocalId, Email: resp.Email}, nil
}

func (b *Backend) CreateIdentity(ctx context.Context, email, password string) (backend.Identity, error) {
	resp, err := b.identity.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return backend.Identity{}, err
	}

	return backend.Identity{UserID: resp.LocalId, Email: resp.Email}, nil
}

type document struct {
	snap *firestore.DocumentSnapshot
}

func (d document) ID() string {
	return d.snap.Ref.ID
}

func (d document) DataTo(v interface{}) error {
	return d.snap.DataTo(v)
}

func wrap(snaps []*firestore.DocumentSnapshot) []backend.Document {
	docs := make([]backend.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, document{snap: snap})
	}
	return docs
}

func (b *Backend) Get(ctx context.Context, collection, key string) (backend.Document, error) {
	docSnap, err := b.firestoreClient.Collection(collection).Doc(key).Get(ctx)
	if err != nil {
		// A missing document comes back as NotFound together with a
		// snapshot that does not exist.
		if docSnap != nil && !docSnap.Exists() {
			return nil, nil
		}
		return nil, err
	}

	return document{snap: docSnap}, nil
}

func (b *Backend) Set(ctx context.Context, collection, key string, value interface{}) error {
	_, err := b.firestoreClient.Collection(collection).Doc(key).Set(ctx, value)
	return err
}

func (b *Backend) query(q backend.Query) firestore.Query {
	query := b.firestoreClient.Collection(q.Collection).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, f.Op, f.Value)
	}
	return query
}

func (b *Backend) Query(ctx context.Context, q backend.Query) ([]backend.Document, error) {
	snaps, err := b.query(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return wrap(snaps), nil
}

// Subscribe runs the query's snapshot iterator on its own goroutine until the
// subscription is cancelled or the stream fails.
func (b *Backend) Subscribe(ctx context.Context, q backend.Query, fn backend.Listener) (backend.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := b.query(q).Snapshots(ctx)
	logger := b.log.WithField("collection", q.Collection)

	go func() {
		defer it.Stop()

		for {
			snap, err := it.Next()
			if ctx.Err() != nil || err == iterator.Done {
				return
			}
			if err != nil {
				logger.Errorf("snapshot listener failed: %s", err)
				fn(nil, err)
				return
			}

			snaps, err := snap.Documents.GetAll()
			if err != nil {
				logger.Errorf("unable to read snapshot: %s", err)
				fn(nil, err)
				return
			}
			fn(wrap(snaps), nil)
		}
	}()

	var once sync.Once
	return backend.SubscriptionFunc(func() {
		once.Do(cancel)
	}), nil
}

// Upload stores r under name and returns a Firebase download URL for it.
func (b *Backend) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	token := uuid.NewString()

	w := b.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{downloadTokenKey: token}

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}

	return downloadURL(b.bucketName, name, token), nil
}

func downloadURL(bucket, name, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(name), url.QueryEscape(token))
}
