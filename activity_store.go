package gatekeeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityCriteria filters an audit trail listing.
type ActivityCriteria struct {
	Page            PageRequest
	EmailFilter     string
	EventTypeFilter string
}

// ActivityLog is the append-only audit store. Entries are never updated or
// deleted through this interface.
type ActivityLog interface {
	Insert(ctx context.Context, record *ActivityRecord) error
	InsertTx(ctx context.Context, tx bun.IDB, record *ActivityRecord) error

	List(ctx context.Context, criteria ActivityCriteria) ([]*ActivityRecord, int64, error)

	// Scan reads a stable slice of the trail ordered by occurrence, oldest
	// first. Used by batch jobs like MigrateActivity.
	Scan(ctx context.Context, offset, limit int) ([]*ActivityRecord, error)
}

type activityLog struct {
	db *bun.DB
}

var _ ActivityLog = (*activityLog)(nil)

func NewActivityLogRepository(db *bun.DB) ActivityLog {
	return &activityLog{db: db}
}

func (a *activityLog) Insert(ctx context.Context, record *ActivityRecord) error {
	return a.InsertTx(ctx, a.db, record)
}

// InsertTx appends an entry. The insert is conflict safe, re-inserting an
// existing ID leaves the stored entry untouched.
func (a *activityLog) InsertTx(ctx context.Context, tx bun.IDB, record *ActivityRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.OccurredAt == nil {
		now := time.Now()
		record.OccurredAt = &now
	}

	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return err
}

// List returns the trail newest first, filtered and paged.
func (a *activityLog) List(ctx context.Context, criteria ActivityCriteria) ([]*ActivityRecord, int64, error) {
	page := NormalizePageRequest(criteria.Page)

	var records []*ActivityRecord
	q := a.db.NewSelect().Model(&records)

	if criteria.EmailFilter != "" {
		q = q.Where("?TableAlias.email LIKE ?", "%"+NormalizeEmail(criteria.EmailFilter)+"%")
	}

	if criteria.EventTypeFilter != "" {
		q = q.Where("?TableAlias.event_type = ?", criteria.EventTypeFilter)
	}

	total, err := q.Order("occurred_at DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	return records, int64(total), nil
}

func (a *activityLog) Scan(ctx context.Context, offset, limit int) ([]*ActivityRecord, error) {
	var records []*ActivityRecord

	err := a.db.NewSelect().
		Model(&records).
		Order("occurred_at ASC", "id ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

// NewActivitySink adapts the audit store to the ActivitySink interface used
// by command handlers.
func NewActivitySink(repo ActivityLog, logger Logger) ActivitySink {
	if logger == nil {
		logger = defLogger{}
	}

	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		occurred := event.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now()
		}

		metadata := event.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}

		if event.Actor.ID != "" || event.Actor.Type != "" {
			metadata["actor_id"] = event.Actor.ID
			metadata["actor_type"] = event.Actor.Type
		}

		record := &ActivityRecord{
			ID:         uuid.New(),
			UserID:     event.UserID,
			Email:      NormalizeEmail(event.Email),
			EventType:  string(event.EventType),
			DeviceID:   event.DeviceID,
			IPAddress:  event.IPAddress,
			Metadata:   metadata,
			OccurredAt: &occurred,
		}

		if err := repo.Insert(ctx, record); err != nil {
			logger.Warn("activity insert error: %v", err)
			return err
		}

		return nil
	})
}

// DefaultMigrationBatchSize is the Scan window used when the caller passes a
// non-positive batch size.
const DefaultMigrationBatchSize = 100

// MigrateActivity copies the audit trail from src to dst in batches. The copy
// preserves entry IDs so the job is idempotent, a rerun after a partial
// failure re-inserts only what is missing.
func MigrateActivity(ctx context.Context, src, dst ActivityLog, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultMigrationBatchSize
	}

	copied := 0
	offset := 0

	for {
		select {
		case <-ctx.Done():
			return copied, ctx.Err()
		default:
		}

		batch, err := src.Scan(ctx, offset, batchSize)
		if err != nil {
			return copied, err
		}

		if len(batch) == 0 {
			return copied, nil
		}

		for _, record := range batch {
			if err := dst.Insert(ctx, record); err != nil {
				return copied, err
			}
			copied++
		}

		offset += len(batch)
	}
}
