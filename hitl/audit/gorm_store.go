package audit

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps records in a relational table via GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db. With autoMigrate the table is created or updated
// from Record; otherwise the schema comes from `hitlbridge migrate up`.
func NewGormStore(db *gorm.DB, autoMigrate bool) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("audit: db is required")
	}
	if autoMigrate {
		if err := db.AutoMigrate(&Record{}); err != nil {
			return nil, fmt.Errorf("audit: auto migrate: %w", err)
		}
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Create(ctx context.Context, rec Record) error {
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("audit: create %s: %w", rec.RequestID, err)
	}
	return nil
}

func (s *GormStore) Resolve(ctx context.Context, rec Record) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"outcome", "waited_ms", "resolved_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("audit: resolve %s: %w", rec.RequestID, err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, requestID string) (Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("request_id = ?", requestID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("audit: get %s: %w", requestID, err)
	}
	return rec, nil
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).Model(&Record{})
	if f.ExecutionID != "" {
		q = q.Where("execution_id = ?", f.ExecutionID)
	}
	if f.Outcome != "" {
		q = q.Where("outcome = ?", f.Outcome)
	}

	var recs []Record
	if err := q.Order("created_at DESC").Limit(f.limit()).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return recs, nil
}
