package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/bobbygour30/admitcard/internal/allocation"
	"github.com/bobbygour30/admitcard/internal/domain"
	pfirestore "github.com/bobbygour30/admitcard/internal/platform/firestore"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

// RegistrationRepository stores registrations under their application number.
type RegistrationRepository struct {
	provider      *pfirestore.Provider
	registrations *pfirestore.Collection[registrationDocument]
	pools         *PoolRepository
}

// Enroll reads both pools and the target document, then books and inserts in
// the same transaction. Contended transactions are retried by Firestore and
// re-run the allocation against fresh counts.
func (r *RegistrationRepository) Enroll(ctx context.Context, reg domain.Registration) (domain.Registration, error) {
	var out domain.Registration
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.registrations.Doc(ctx, reg.ApplicationNumber)
		if err != nil {
			return err
		}
		if _, err := tx.Get(ref); err == nil {
			return duplicate(reg.ApplicationNumber)
		} else if !pfirestore.IsNotFound(err) {
			return err
		}

		centers, shifts, err := r.pools.txSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		assignment, _, _, err := allocation.Allocate(centers, shifts)
		if err != nil {
			return err
		}
		if err := r.pools.book(ctx, tx, assignment); err != nil {
			return err
		}

		next := reg.Clone()
		next.ApplyAssignment(assignment)
		if err := tx.Create(ref, newRegistrationDocument(next)); err != nil {
			if pfirestore.IsAlreadyExists(err) {
				return duplicate(reg.ApplicationNumber)
			}
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Registration{}, pfirestore.WrapError("registrations.enroll", err)
	}
	return out, nil
}

func (r *RegistrationRepository) FindByApplicationNumber(ctx context.Context, applicationNumber string) (domain.Registration, error) {
	doc, err := r.registrations.Get(ctx, applicationNumber)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Registration{}, notFound("registrations.get", applicationNumber)
		}
		return domain.Registration{}, err
	}
	return doc.toDomain(), nil
}

// List orders by creation time on the server. Firestore has no substring
// matching, so a search term is applied after the read.
func (r *RegistrationRepository) List(ctx context.Context, filter domain.RegistrationFilter) ([]domain.Registration, error) {
	docs, err := r.registrations.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("created_at", firestore.Desc)
		if filter.Search == "" && filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	regs := make([]domain.Registration, len(docs))
	for i, d := range docs {
		regs[i] = d.toDomain()
	}
	return repositories.ApplyFilter(regs, filter), nil
}

func (r *RegistrationRepository) AttachDocument(ctx context.Context, applicationNumber string, kind domain.DocumentKind, ref string, now time.Time) (domain.Registration, error) {
	var out domain.Registration
	err := r.update(ctx, "registrations.attach_document", applicationNumber, func(doc *registrationDocument) bool {
		if doc.Documents == nil {
			doc.Documents = make(map[string]string)
		}
		doc.Documents[string(kind)] = ref
		doc.UpdatedAt = now.UTC()
		out = doc.toDomain()
		return true
	})
	return out, err
}

func (r *RegistrationRepository) MarkPaid(ctx context.Context, applicationNumber, transactionNumber string, paidAt time.Time) (domain.Registration, bool, error) {
	var (
		out     domain.Registration
		changed bool
	)
	err := r.update(ctx, "registrations.mark_paid", applicationNumber, func(doc *registrationDocument) bool {
		changed = !doc.PaymentStatus
		if changed {
			at := paidAt.UTC()
			doc.PaymentStatus = true
			doc.TransactionNumber = transactionNumber
			doc.TransactionDate = &at
			doc.UpdatedAt = at
		}
		out = doc.toDomain()
		return changed
	})
	return out, changed, err
}

func (r *RegistrationRepository) Delete(ctx context.Context, applicationNumber string) (domain.Registration, error) {
	var out domain.Registration
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.registrations.Doc(ctx, applicationNumber)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return notFound("registrations.delete", applicationNumber)
			}
			return err
		}
		doc, err := pfirestore.Decode[registrationDocument](snap)
		if err != nil {
			return err
		}
		out = doc.toDomain()
		return tx.Delete(ref)
	})
	if err != nil {
		return domain.Registration{}, pfirestore.WrapError("registrations.delete", err)
	}
	return out, nil
}

// update runs mutate on the stored document inside a transaction and writes
// it back when mutate reports a change.
func (r *RegistrationRepository) update(ctx context.Context, op, applicationNumber string, mutate func(*registrationDocument) bool) error {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.registrations.Doc(ctx, applicationNumber)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return notFound(op, applicationNumber)
			}
			return err
		}
		doc, err := pfirestore.Decode[registrationDocument](snap)
		if err != nil {
			return err
		}
		if !mutate(&doc) {
			return nil
		}
		return tx.Set(ref, doc)
	})
	return pfirestore.WrapError(op, err)
}

// The typed errors carry no gRPC cause so WrapError leaves them untouched.
func notFound(op, applicationNumber string) error {
	return repositories.NewRegistrationError(op, repositories.RegistrationErrorNotFound, fmt.Sprintf("registration %s not found", applicationNumber), nil)
}

func duplicate(applicationNumber string) error {
	return repositories.NewRegistrationError("registrations.enroll", repositories.RegistrationErrorDuplicate, fmt.Sprintf("application number %s already exists", applicationNumber), nil)
}
