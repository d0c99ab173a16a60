package duel

import (
	"errors"
	"time"
)

var ErrUnsupportedEvent = errors.New("unsupported duel event")

type ConnStatus string

const (
	ConnConnecting   ConnStatus = "connecting"
	ConnConnected    ConnStatus = "connected"
	ConnDisconnected ConnStatus = "disconnected"
	ConnError        ConnStatus = "error"
)

// State is everything a duel screen needs: the connection axis, the duel
// snapshot, and ephemeral per-message fields. It is folded forward by
// Apply and never mutated in place.
type State struct {
	Conn       ConnStatus
	Duel       *Duel
	Typing     map[string]bool
	AIProgress float64
}

func NewState() State {
	return State{Conn: ConnDisconnected, Typing: map[string]bool{}}
}

// WithConn returns a copy of the state with the connection axis updated.
// Connection transitions come from the socket lifecycle, not from the
// message stream, so they bypass Apply.
func (s State) WithConn(c ConnStatus) State {
	s.Conn = c
	return s
}

// Event is a closed union of everything the reducer can fold in.
type Event interface{ isDuelEvent() }

type DuelStarted struct {
	Duel Duel
}

type DuelEnded struct {
	WinnerID   string
	Results    map[string]TestResult
	FinishedAt time.Time
}

type CodeUpdated struct {
	UserID   string
	Code     string
	Language string
}

type TestResulted struct {
	UserID string
	Result TestResult
}

type TypingChanged struct {
	UserID string
	Typing bool
}

type AIProgressed struct {
	UserID   string
	Progress float64
	Code     string
}

type AIDeleted struct {
	UserID string
	Chars  int
}

func (DuelStarted) isDuelEvent()   {}
func (DuelEnded) isDuelEvent()     {}
func (CodeUpdated) isDuelEvent()   {}
func (TestResulted) isDuelEvent()  {}
func (TypingChanged) isDuelEvent() {}
func (AIProgressed) isDuelEvent()  {}
func (AIDeleted) isDuelEvent()     {}

// Apply folds one event into the state and returns the new state. Events
// that need a loaded duel no-op when none is present. Code updates are
// last-write-wins: a duplicate or reordered update simply overwrites.
func Apply(s State, ev Event) (State, error) {
	switch ev := ev.(type) {
	case DuelStarted:
		d := ev.Duel.clone()
		if d.Status == StatusPending || d.Status == StatusGenerating {
			d.Status = StatusInProgress
		}
		s.Duel = d
		s.Conn = ConnConnected
		s.Typing = map[string]bool{}
		s.AIProgress = 0
		return s, nil

	case DuelEnded:
		if s.Duel == nil {
			return s, nil
		}
		d := s.Duel.clone()
		d.Status = StatusCompleted
		d.WinnerID = ev.WinnerID
		fin := ev.FinishedAt
		d.FinishedAt = &fin
		for i := range d.Participants {
			p := &d.Participants[i]
			if r, ok := ev.Results[p.UserID]; ok {
				res := r
				p.Result = &res
			}
			p.Winner = p.UserID == ev.WinnerID
		}
		s.Duel = d
		s.Typing = map[string]bool{}
		return s, nil

	case CodeUpdated:
		if s.Duel == nil {
			return s, nil
		}
		d := s.Duel.clone()
		p := d.Participant(ev.UserID)
		if p == nil {
			return s, nil
		}
		p.Code = ev.Code
		if ev.Language != "" {
			p.Language = ev.Language
		}
		s.Duel = d
		return s, nil

	case TestResulted:
		if s.Duel == nil {
			return s, nil
		}
		d := s.Duel.clone()
		p := d.Participant(ev.UserID)
		if p == nil {
			return s, nil
		}
		res := ev.Result
		p.Result = &res
		s.Duel = d
		return s, nil

	case TypingChanged:
		typing := make(map[string]bool, len(s.Typing)+1)
		for k, v := range s.Typing {
			typing[k] = v
		}
		typing[ev.UserID] = ev.Typing
		s.Typing = typing
		return s, nil

	case AIProgressed:
		s.AIProgress = ev.Progress
		if s.Duel == nil || ev.Code == "" {
			return s, nil
		}
		d := s.Duel.clone()
		if p := d.Participant(ev.UserID); p != nil {
			p.Code = ev.Code
			s.Duel = d
		}
		return s, nil

	case AIDeleted:
		if s.Duel == nil || ev.Chars <= 0 {
			return s, nil
		}
		d := s.Duel.clone()
		p := d.Participant(ev.UserID)
		if p == nil {
			return s, nil
		}
		// Deleting runes, not bytes, keeps multi-byte code valid UTF-8.
		code := []rune(p.Code)
		if ev.Chars >= len(code) {
			p.Code = ""
		} else {
			p.Code = string(code[:len(code)-ev.Chars])
		}
		s.Duel = d
		return s, nil

	default:
		return s, ErrUnsupportedEvent
	}
}

func (d *Duel) clone() *Duel {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Participants = make([]Participant, len(d.Participants))
	copy(cp.Participants, d.Participants)
	for i := range cp.Participants {
		if r := cp.Participants[i].Result; r != nil {
			res := *r
			cp.Participants[i].Result = &res
		}
	}
	return &cp
}
