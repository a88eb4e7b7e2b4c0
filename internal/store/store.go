package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleet-monitor-backend/internal/model"
)

// ErrNotOpen is returned when closing an exception that is not open.
var ErrNotOpen = errors.New("no open exception for robot")

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryQuery filters closed exceptions. Zero values mean "any".
type HistoryQuery struct {
	RobotID string
	Outcome model.Outcome
	Since   time.Time
	Limit   int
}

// Store defines the interface for all database operations.
type Store interface {
	OpenException(ctx context.Context, rec model.ExceptionOpen) error
	CloseException(ctx context.Context, robotID string, closedAt time.Time, outcome model.Outcome, employee string) (model.ExceptionHistory, error)
	ListOpen(ctx context.Context) ([]model.ExceptionOpen, error)
	ListHistory(ctx context.Context, q HistoryQuery) ([]model.ExceptionHistory, error)
	ArchiveAllOpen(ctx context.Context, at time.Time, outcome model.Outcome) (int, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// OpenException inserts the open record, overwriting a stale row for the
// same robot.
func (s *gormStore) OpenException(ctx context.Context, rec model.ExceptionOpen) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "robot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"robot_type", "category", "detail", "opened_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to open exception for robot %s: %w", rec.RobotID, err)
	}
	return nil
}

// CloseException moves the robot's open record into history.
func (s *gormStore) CloseException(ctx context.Context, robotID string, closedAt time.Time, outcome model.Outcome, employee string) (model.ExceptionHistory, error) {
	var archived model.ExceptionHistory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open model.ExceptionOpen
		if err := tx.Where("robot_id = ?", robotID).First(&open).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotOpen
			}
			return fmt.Errorf("failed to load open exception for robot %s: %w", robotID, err)
		}

		var err error
		archived, err = archiveRecord(tx, open, closedAt, outcome, employee)
		return err
	})
	return archived, err
}

// archiveRecord writes the history row and removes the open row.
func archiveRecord(tx *gorm.DB, open model.ExceptionOpen, closedAt time.Time, outcome model.Outcome, employee string) (model.ExceptionHistory, error) {
	history := model.ExceptionHistory{
		RobotID:   open.RobotID,
		RobotType: open.RobotType,
		Category:  open.Category,
		Detail:    open.Detail,
		OpenedAt:  open.OpenedAt,
		ClosedAt:  closedAt,
		Outcome:   outcome,
		Employee:  employee,
	}
	if err := tx.Create(&history).Error; err != nil {
		return history, fmt.Errorf("failed to archive exception for robot %s: %w", open.RobotID, err)
	}
	if err := tx.Where("robot_id = ?", open.RobotID).Delete(&model.ExceptionOpen{}).Error; err != nil {
		return history, fmt.Errorf("failed to delete open exception for robot %s: %w", open.RobotID, err)
	}
	return history, nil
}

func (s *gormStore) ListOpen(ctx context.Context) ([]model.ExceptionOpen, error) {
	var open []model.ExceptionOpen
	if err := s.db.WithContext(ctx).Order("opened_at").Find(&open).Error; err != nil {
		return nil, fmt.Errorf("failed to list open exceptions: %w", err)
	}
	return open, nil
}

func (s *gormStore) ListHistory(ctx context.Context, q HistoryQuery) ([]model.ExceptionHistory, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	tx := s.db.WithContext(ctx).Model(&model.ExceptionHistory{})
	if q.RobotID != "" {
		tx = tx.Where("robot_id = ?", q.RobotID)
	}
	if q.Outcome != "" {
		tx = tx.Where("outcome = ?", q.Outcome)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("closed_at >= ?", q.Since)
	}

	var history []model.ExceptionHistory
	if err := tx.Order("closed_at DESC").Limit(limit).Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to list exception history: %w", err)
	}
	return history, nil
}

// ArchiveAllOpen closes every open record. The poller's in-memory log starts
// empty, so rows left over from a previous run are archived at startup.
func (s *gormStore) ArchiveAllOpen(ctx context.Context, at time.Time, outcome model.Outcome) (int, error) {
	var archived int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []model.ExceptionOpen
		if err := tx.Find(&open).Error; err != nil {
			return fmt.Errorf("failed to fetch open exceptions: %w", err)
		}
		for _, rec := range open {
			if _, err := archiveRecord(tx, rec, at, outcome, ""); err != nil {
				return err
			}
			archived++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if archived > 0 {
		log.Info().Int("count", archived).Str("outcome", string(outcome)).Msg("archived stale open exceptions")
	}
	return archived, nil
}
