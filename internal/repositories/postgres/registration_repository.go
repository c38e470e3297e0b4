package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobbygour30/admitcard/internal/allocation"
	"github.com/bobbygour30/admitcard/internal/domain"
	ppostgres "github.com/bobbygour30/admitcard/internal/platform/postgres"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

const registrationColumns = `application_number, personal_info, documents, exam_center, exam_shift,
	center_id, shift_id, payment_status, transaction_number, transaction_date, created_at, updated_at`

// RegistrationRepository stores one row per registration.
type RegistrationRepository struct {
	db *sql.DB
}

func (r *RegistrationRepository) Enroll(ctx context.Context, reg domain.Registration) (domain.Registration, error) {
	info, err := json.Marshal(reg.PersonalInfo)
	if err != nil {
		return domain.Registration{}, fmt.Errorf("encode personal info: %w", err)
	}
	docs, err := encodeDocuments(reg.Documents)
	if err != nil {
		return domain.Registration{}, err
	}

	var out domain.Registration
	err = ppostgres.RunSerializable(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE application_number = $1)`, reg.ApplicationNumber).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return duplicate(reg.ApplicationNumber)
		}

		centers, shifts, err := snapshot(ctx, tx, "FOR UPDATE")
		if err != nil {
			return err
		}
		assignment, _, _, err := allocation.Allocate(centers, shifts)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE exam_centers SET current_bookings = current_bookings + 1 WHERE id = $1`, assignment.Center.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE exam_shifts SET current_bookings = current_bookings + 1 WHERE id = $1`, assignment.Shift.ID); err != nil {
			return err
		}

		next := reg.Clone()
		next.ApplyAssignment(assignment)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO registrations (
				application_number, union_name, name, email, personal_info, documents,
				exam_center, exam_shift, center_id, shift_id, payment_status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12)`,
			next.ApplicationNumber, next.PersonalInfo.Union.String(), next.PersonalInfo.Name, next.PersonalInfo.Email,
			info, docs, next.ExamCenter, next.ExamShift, next.CenterID, next.ShiftID,
			next.CreatedAt.UTC(), next.UpdatedAt.UTC())
		if err != nil {
			return err
		}
		out = next
		return nil
	})
	switch {
	case ppostgres.IsUniqueViolation(err):
		return domain.Registration{}, duplicate(reg.ApplicationNumber)
	case ppostgres.IsRetryable(err):
		return domain.Registration{}, repositories.NewRegistrationError("registrations.enroll", repositories.ErrorContended, "seat booking kept conflicting, retry later", err)
	case err != nil:
		return domain.Registration{}, err
	}
	return out, nil
}

func (r *RegistrationRepository) FindByApplicationNumber(ctx context.Context, applicationNumber string) (domain.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE application_number = $1`, applicationNumber)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, notFound("registrations.get", applicationNumber)
	}
	return reg, err
}

func (r *RegistrationRepository) List(ctx context.Context, filter domain.RegistrationFilter) ([]domain.Registration, error) {
	search := strings.TrimSpace(filter.Search)
	pattern := "%" + likeEscaper.Replace(search) + "%"
	// LIMIT NULL returns every row.
	var limit sql.NullInt64
	if filter.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(filter.Limit), Valid: true}
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+registrationColumns+` FROM registrations
		WHERE $1 = '' OR application_number ILIKE $2 OR name ILIKE $2 OR email ILIKE $2
		ORDER BY created_at DESC, application_number
		LIMIT $3`, search, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (r *RegistrationRepository) AttachDocument(ctx context.Context, applicationNumber string, kind domain.DocumentKind, ref string, now time.Time) (domain.Registration, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE registrations
		SET documents = documents || jsonb_build_object($2::text, $3::text), updated_at = $4
		WHERE application_number = $1
		RETURNING `+registrationColumns,
		applicationNumber, string(kind), ref, now.UTC())
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, notFound("registrations.attach_document", applicationNumber)
	}
	return reg, err
}

// MarkPaid only updates unpaid rows, so the first transaction number wins.
func (r *RegistrationRepository) MarkPaid(ctx context.Context, applicationNumber, transactionNumber string, paidAt time.Time) (domain.Registration, bool, error) {
	at := paidAt.UTC()
	row := r.db.QueryRowContext(ctx, `
		UPDATE registrations
		SET payment_status = TRUE, transaction_number = $2, transaction_date = $3, updated_at = $3
		WHERE application_number = $1 AND NOT payment_status
		RETURNING `+registrationColumns,
		applicationNumber, transactionNumber, at)
	reg, err := scanRegistration(row)
	if err == nil {
		return reg, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, false, err
	}
	existing, err := r.FindByApplicationNumber(ctx, applicationNumber)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Registration{}, false, notFound("registrations.mark_paid", applicationNumber)
		}
		return domain.Registration{}, false, err
	}
	return existing, false, nil
}

func (r *RegistrationRepository) Delete(ctx context.Context, applicationNumber string) (domain.Registration, error) {
	row := r.db.QueryRowContext(ctx, `DELETE FROM registrations WHERE application_number = $1 RETURNING `+registrationColumns, applicationNumber)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, notFound("registrations.delete", applicationNumber)
	}
	return reg, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanRegistration(row rowScanner) (domain.Registration, error) {
	var (
		reg       domain.Registration
		info      []byte
		docs      []byte
		txnNumber sql.NullString
		txnDate   sql.NullTime
	)
	err := row.Scan(&reg.ApplicationNumber, &info, &docs, &reg.ExamCenter, &reg.ExamShift,
		&reg.CenterID, &reg.ShiftID, &reg.PaymentStatus, &txnNumber, &txnDate, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return domain.Registration{}, err
	}
	if err := json.Unmarshal(info, &reg.PersonalInfo); err != nil {
		return domain.Registration{}, fmt.Errorf("decode personal info %s: %w", reg.ApplicationNumber, err)
	}
	reg.PersonalInfo.Union = domain.NormalizeUnion(string(reg.PersonalInfo.Union))
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &reg.Documents); err != nil {
			return domain.Registration{}, fmt.Errorf("decode documents %s: %w", reg.ApplicationNumber, err)
		}
		if len(reg.Documents) == 0 {
			reg.Documents = nil
		}
	}
	reg.TransactionNumber = txnNumber.String
	if txnDate.Valid {
		at := txnDate.Time.UTC()
		reg.TransactionDate = &at
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	reg.UpdatedAt = reg.UpdatedAt.UTC()
	return reg, nil
}

func encodeDocuments(docs map[domain.DocumentKind]string) ([]byte, error) {
	if docs == nil {
		docs = map[domain.DocumentKind]string{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode documents: %w", err)
	}
	return data, nil
}

func notFound(op, applicationNumber string) error {
	return repositories.NewRegistrationError(op, repositories.RegistrationErrorNotFound, fmt.Sprintf("registration %s not found", applicationNumber), nil)
}

func duplicate(applicationNumber string) error {
	return repositories.NewRegistrationError("registrations.enroll", repositories.RegistrationErrorDuplicate, fmt.Sprintf("application number %s already exists", applicationNumber), nil)
}
