package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/bobbygour30/admitcard/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore keeps keys in a Firestore collection. Reserve and
// SaveResponse run in transactions so concurrent retries see one owner.
type FirestoreStore struct {
	provider *pfirestore.Provider
	records  *pfirestore.Collection[Record]
}

// NewFirestoreStore binds the store to collection (default "idempotencyKeys").
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{
		provider: provider,
		records:  pfirestore.NewCollection[Record](provider, collection),
	}
}

// Reserve implements Store.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	var result Reservation
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.records.Doc(ctx, documentID(key))
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil && !pfirestore.IsNotFound(err) {
			return err
		}
		if err == nil {
			record, decodeErr := pfirestore.Decode[Record](snap)
			if decodeErr != nil {
				return decodeErr
			}
			if !record.expired(now) {
				result, err = reservationFor(record, fingerprint)
				return err
			}
		}
		record := pendingRecord(key, fingerprint, now, normalizeTTL(ttl))
		result = Reservation{State: ReservationStateNew, Record: record}
		return tx.Set(ref, record)
	})
	return result, err
}

// SaveResponse implements Store.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.records.Doc(ctx, documentID(key))
		if err != nil {
			return err
		}
		record := Record{Key: key, Fingerprint: fingerprint}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if record, err = pfirestore.Decode[Record](snap); err != nil {
				return err
			}
			if record.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		case !pfirestore.IsNotFound(err):
			return err
		}
		return tx.Set(ref, record.complete(resp, now, normalizeTTL(ttl)))
	})
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	return s.records.Delete(ctx, documentID(key))
}

// CleanupExpired deletes up to limit expired keys in one batch.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	ref, err := s.records.Ref(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := ref.Where("expires_at", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.cleanup", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	bulk := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := bulk.Delete(doc.Ref); err != nil {
			bulk.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
	}
	bulk.End()
	return len(docs), nil
}
