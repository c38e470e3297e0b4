package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// QueryFunc narrows a collection query.
type QueryFunc func(firestore.Query) firestore.Query

// Collection is a typed view over one Firestore collection whose documents
// decode into T with the firestore struct tags.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds name on provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Ref returns the collection reference.
func (c *Collection[T]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, errors.New("firestore: collection has no provider")
	}
	if c.name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

// Doc returns the reference of document id.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("firestore: %s: document id is required", c.name)
	}
	ref, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Doc(id), nil
}

// Get reads and decodes document id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return zero, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return zero, WrapError(c.op("get"), err)
	}
	return Decode[T](snap)
}

// Set writes value under id, replacing any existing document.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, value)
	return WrapError(c.op("set"), err)
}

// Create writes value under id and fails with AlreadyExists if it is taken.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, value)
	return WrapError(c.op("create"), err)
}

// Delete removes document id. Missing documents are not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return WrapError(c.op("delete"), err)
}

// Query runs build over the collection and decodes every result.
func (c *Collection[T]) Query(ctx context.Context, build QueryFunc) ([]T, error) {
	ref, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	query := ref.Query
	if build != nil {
		query = build(query)
	}
	return collect[T](query.Documents(ctx), c.op("query"))
}

// TxQuery is Query inside a transaction.
func (c *Collection[T]) TxQuery(ctx context.Context, tx *firestore.Transaction, build QueryFunc) ([]T, error) {
	ref, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	query := ref.Query
	if build != nil {
		query = build(query)
	}
	return collect[T](tx.Documents(query), c.op("tx_query"))
}

// Decode converts a snapshot into T.
func Decode[T any](snap *firestore.DocumentSnapshot) (T, error) {
	var out T
	if err := snap.DataTo(&out); err != nil {
		return out, fmt.Errorf("firestore: decode %s: %w", snap.Ref.ID, err)
	}
	return out, nil
}

func collect[T any](iter *firestore.DocumentIterator, op string) ([]T, error) {
	defer iter.Stop()
	var out []T
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, WrapError(op, err)
		}
		value, err := Decode[T](snap)
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
}

func (c *Collection[T]) op(action string) string {
	return c.name + "." + action
}
