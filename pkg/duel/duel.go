package duel

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Mode string

const (
	ModePvP Mode = "pvp"
	ModePvE Mode = "pve"
)

// TestResult is replaced wholesale on every received result; partial
// results are never merged.
type TestResult struct {
	Passed     int       `json:"passed"`
	Total      int       `json:"total"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

type Participant struct {
	UserID   string      `json:"user_id"`
	Name     string      `json:"name"`
	IsAI     bool        `json:"is_ai"`
	Code     string      `json:"code"`
	Language string      `json:"language"`
	Result   *TestResult `json:"result,omitempty"`
	Winner   bool        `json:"winner"`
}

type Duel struct {
	ID           string        `json:"id"`
	ProblemID    string        `json:"problem_id"`
	Mode         Mode          `json:"mode"`
	Status       Status        `json:"status"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	WinnerID     string        `json:"winner_id,omitempty"`
}

// Participant returns a pointer into d.Participants for the given user,
// or nil when the user is not part of the duel.
func (d *Duel) Participant(userID string) *Participant {
	for i := range d.Participants {
		if d.Participants[i].UserID == userID {
			return &d.Participants[i]
		}
	}
	return nil
}

func (d *Duel) Opponent(userID string) *Participant {
	for i := range d.Participants {
		if d.Participants[i].UserID != userID {
			return &d.Participants[i]
		}
	}
	return nil
}
