package store

import "time"

// TestCase pairs an input with its expected output. Hidden cases run only
// on submit, never on test.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Hidden   bool   `json:"hidden"`
}

type Problem struct {
	ID          string     `gorm:"primaryKey"`
	Title       string     `gorm:"not null"`
	Description string
	Difficulty  string
	Language    string
	StarterCode string
	// Solution is the reference implementation; admin-only, also typed
	// out by the AI opponent in PvE duels.
	Solution  string
	TestCases []TestCase `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicCases returns the cases a test run may use.
func (p Problem) PublicCases() []TestCase {
	out := make([]TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if !tc.Hidden {
			out = append(out, tc)
		}
	}
	return out
}

type DuelRecord struct {
	ID         string `gorm:"primaryKey"`
	ProblemID  string `gorm:"index;not null"`
	Mode       string `gorm:"not null"`
	Status     string `gorm:"index;not null"`
	PlayerID   string `gorm:"index;not null"`
	OpponentID string `gorm:"index"`
	WinnerID   string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

type Submission struct {
	ID        string `gorm:"primaryKey"`
	DuelID    string `gorm:"index;not null"`
	UserID    string `gorm:"index;not null"`
	Kind      string `gorm:"not null"` // "test" or "submit"
	Code      string
	Language  string
	Passed    int
	Total     int
	Success   bool
	Output    string
	CreatedAt time.Time
}

// DashboardStats are the per-user aggregates the dashboard shows.
type DashboardStats struct {
	UserID      string `json:"user_id"`
	Duels       int64  `json:"duels"`
	Wins        int64  `json:"wins"`
	Losses      int64  `json:"losses"`
	Submissions int64  `json:"submissions"`
	Solved      int64  `json:"solved"`
}
