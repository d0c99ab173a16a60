package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("not found")

// Store is the gorm-backed persistence layer. Handlers consume it through
// the narrow interfaces below so tests can swap in fakes.
type Store struct {
	db *gorm.DB
}

type ProblemRepo interface {
	CreateProblem(ctx context.Context, p *Problem) error
	UpdateProblem(ctx context.Context, p *Problem) error
	GetProblem(ctx context.Context, id string) (*Problem, error)
	ListProblems(ctx context.Context) ([]Problem, error)
}

type DuelRepo interface {
	CreateDuel(ctx context.Context, d *DuelRecord) error
	GetDuel(ctx context.Context, id string) (*DuelRecord, error)
	UpdateDuel(ctx context.Context, d *DuelRecord) error
}

type SubmissionRepo interface {
	CreateSubmission(ctx context.Context, s *Submission) error
	StatsFor(ctx context.Context, userID string) (DashboardStats, error)
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Problem{}, &DuelRecord{}, &Submission{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateProblem(ctx context.Context, p *Problem) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// problemColumns are the columns UpdateProblem writes. Selecting them
// explicitly makes gorm persist zero values, so clearing a description
// or starter code to "" actually sticks.
var problemColumns = []string{
	"title", "description", "difficulty", "language",
	"starter_code", "solution", "test_cases",
}

func (s *Store) UpdateProblem(ctx context.Context, p *Problem) error {
	res := s.db.WithContext(ctx).Model(&Problem{ID: p.ID}).
		Select(problemColumns).Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetProblem(ctx context.Context, id string) (*Problem, error) {
	var p Problem
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProblems(ctx context.Context) ([]Problem, error) {
	var out []Problem
	err := s.db.WithContext(ctx).Order("created_at desc").Find(&out).Error
	return out, err
}

func (s *Store) CreateDuel(ctx context.Context, d *DuelRecord) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *Store) GetDuel(ctx context.Context, id string) (*DuelRecord, error) {
	var d DuelRecord
	err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) UpdateDuel(ctx context.Context, d *DuelRecord) error {
	return s.db.WithContext(ctx).Save(d).Error
}

func (s *Store) CreateSubmission(ctx context.Context, sub *Submission) error {
	return s.db.WithContext(ctx).Create(sub).Error
}

func (s *Store) StatsFor(ctx context.Context, userID string) (DashboardStats, error) {
	stats := DashboardStats{UserID: userID}
	db := s.db.WithContext(ctx)

	completed := db.Model(&DuelRecord{}).
		Where("status = ?", "completed").
		Where("player_id = ? OR opponent_id = ?", userID, userID)
	if err := completed.Count(&stats.Duels).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&DuelRecord{}).
		Where("status = ? AND winner_id = ?", "completed", userID).
		Count(&stats.Wins).Error; err != nil {
		return stats, err
	}
	stats.Losses = stats.Duels - stats.Wins

	if err := db.Model(&Submission{}).
		Where("user_id = ? AND kind = ?", userID, "submit").
		Count(&stats.Submissions).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&Submission{}).
		Where("user_id = ? AND kind = ? AND success", userID, "submit").
		Count(&stats.Solved).Error; err != nil {
		return stats, err
	}
	return stats, nil
}
