package postgres

import (
	"context"
	"fmt"

	"github.com/markrhq/markr/internal/store"
)

// SMSRepository provides PostgreSQL-backed notification history.
type SMSRepository struct {
	pool *Pool
}

// NewSMSRepository creates a new SMS repository.
func NewSMSRepository(pool *Pool) *SMSRepository {
	return &SMSRepository{pool: pool}
}

// SaveSMS stores one sent notification batch.
func (r *SMSRepository) SaveSMS(ctx context.Context, rec *store.SMSRecord) error {
	query := `
		INSERT INTO sms_history (school_id, recipients, target_class, message, recipient_count, sent_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, sent_at
	`
	err := r.pool.QueryRow(ctx, query,
		rec.SchoolID, rec.Recipients, rec.TargetClass, rec.Message, rec.RecipientCount, rec.SentBy,
	).Scan(&rec.ID, &rec.SentAt)
	if err != nil {
		return fmt.Errorf("save sms record: %w", err)
	}
	return nil
}

// SMSHistory returns the most recent notification batches for a school.
func (r *SMSRepository) SMSHistory(ctx context.Context, schoolID int64, limit int) ([]store.SMSRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, school_id, recipients, target_class, message, recipient_count, sent_by, sent_at
		FROM sms_history
		WHERE school_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, schoolID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sms history: %w", err)
	}
	defer rows.Close()

	var records []store.SMSRecord
	for rows.Next() {
		var rec store.SMSRecord
		if err := rows.Scan(&rec.ID, &rec.SchoolID, &rec.Recipients, &rec.TargetClass,
			&rec.Message, &rec.RecipientCount, &rec.SentBy, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("scan sms record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sms history: %w", err)
	}
	return records, nil
}

var _ store.SMSStore = (*SMSRepository)(nil)
