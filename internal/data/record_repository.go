package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"intakeservice/internal/errdefs"
	"intakeservice/internal/model"
)

type RecordRepository struct {
	db *pgxpool.Pool
}

func NewRecordRepository(db *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{db: db}
}

type submissionRow struct {
	DocumentID      string    `db:"document_id"`
	ParticipantName string    `db:"participant_name"`
	Record          []byte    `db:"record"`
	CreatedAt       time.Time `db:"created_at"`
}

// Put persists one assembled record. A record is written exactly once; a
// duplicate document id is a caller bug and surfaces as a constraint error.
func (r *RecordRepository) Put(ctx context.Context, documentID string, record *model.StructuredRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
INSERT INTO submissions (
 document_id, participant_name, record, created_at
)
VALUES ($1, $2, $3, $4)
`
	_, err = r.db.Exec(ctx, query,
		documentID,
		record.Participant.Name,
		payload,
		record.Metadata.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// Get fetches a persisted record by document id.
func (r *RecordRepository) Get(ctx context.Context, documentID string) (*model.StructuredRecord, error) {
	query := `
SELECT document_id, participant_name, record, created_at
FROM submissions
WHERE document_id = $1
`
	var row submissionRow
	err := pgxscan.Get(ctx, r.db, &row, query, documentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("submission %s: %w", documentID, errdefs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	var record model.StructuredRecord
	if err := json.Unmarshal(row.Record, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", documentID, err)
	}
	return &record, nil
}
