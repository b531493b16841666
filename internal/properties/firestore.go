package properties

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const firestorePropsField = "props"

// Firestore keeps one document per namespace; its "props" map holds the key-value pairs.
type Firestore struct {
	client *firestore.Client
	doc    *firestore.DocumentRef
	logger *slog.Logger
}

var _ Backend = (*Firestore)(nil)

// OpenFirestore creates a Firestore client for projectID.
func OpenFirestore(ctx context.Context, projectID, collection, namespace string, logger *slog.Logger) (*Firestore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return NewFirestore(client, collection, namespace, logger), nil
}

func NewFirestore(client *firestore.Client, collection, namespace string, logger *slog.Logger) *Firestore {
	if logger == nil {
		logger = slog.Default()
	}
	return &Firestore{
		client: client,
		doc:    client.Collection(collection).Doc(namespace),
		logger: logger,
	}
}

func (f *Firestore) Get(ctx context.Context, key string) (string, bool, error) {
	all, err := f.List(ctx)
	if err != nil {
		return "", false, err
	}
	v, ok := all[key]
	return v, ok, nil
}

func (f *Firestore) Set(ctx context.Context, key, value string) error {
	_, err := f.doc.Set(ctx, map[string]any{
		firestorePropsField: map[string]any{key: value},
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (f *Firestore) List(ctx context.Context) (map[string]string, error) {
	snap, err := f.doc.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.doc.Path, err)
	}
	out := map[string]string{}
	raw, ok := snap.Data()[firestorePropsField].(map[string]any)
	if !ok {
		return out, nil
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

func (f *Firestore) Close() error { return f.client.Close() }
