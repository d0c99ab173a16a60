package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/monlaf-sfk/battle-stack-sub001/pkg/duel"
)

var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrBadPayload  = errors.New("bad message payload")
)

// Kind discriminates the websocket envelope. The set is closed: the
// decoder rejects anything not listed here.
type Kind string

const (
	KindDuelStart    Kind = "duel_start"
	KindDuelEnd      Kind = "duel_end"
	KindCodeUpdate   Kind = "code_update"
	KindTestResult   Kind = "test_result"
	KindTypingStatus Kind = "typing_status"
	KindAIProgress   Kind = "ai_progress"
	KindAIDelete     Kind = "ai_delete"
	KindPing         Kind = "ping"
	KindPong         Kind = "pong"
	KindError        Kind = "error"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDuelStart, KindDuelEnd, KindCodeUpdate, KindTestResult,
		KindTypingStatus, KindAIProgress, KindAIDelete,
		KindPing, KindPong, KindError:
		return true
	}
	return false
}

// Close codes after which a client must not reconnect.
const (
	CloseNormal   = 1000
	CloseDuelOver = 4000
)

// Message is the JSON frame exchanged over a duel websocket.
type Message struct {
	Type   Kind            `json:"type"`
	UserID string          `json:"user_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type DuelStartData struct {
	Duel duel.Duel `json:"duel"`
}

type DuelEndData struct {
	WinnerID   string                     `json:"winner_id,omitempty"`
	Results    map[string]duel.TestResult `json:"results,omitempty"`
	FinishedAt time.Time                  `json:"finished_at"`
}

type CodeUpdateData struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

type TypingStatusData struct {
	Typing bool `json:"typing"`
}

type AIProgressData struct {
	Progress float64 `json:"progress"`
	Code     string  `json:"code,omitempty"`
}

type AIDeleteData struct {
	Chars int `json:"chars"`
}

type ErrorData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Decode parses a raw frame and validates its kind. The payload itself is
// validated later, when the frame is converted to an event.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if !m.Type.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, m.Type)
	}
	return m, nil
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Event converts a frame into a reducer event. Ping, pong and error
// frames carry no state and return (nil, nil); the transport layer deals
// with them before the reducer ever sees them.
func (m Message) Event() (duel.Event, error) {
	switch m.Type {
	case KindDuelStart:
		var d DuelStartData
		if err := m.decodeData(&d); err != nil {
			return nil, err
		}
		if d.Duel.ID == "" {
			return nil, fmt.Errorf("%w: duel_start without duel id", ErrBadPayload)
		}
		return duel.DuelStarted{Duel: d.Duel}, nil

	case KindDuelEnd:
		var d DuelEndData
		if err := m.decodeData(&d); err != nil {
			return nil, err
		}
		return duel.DuelEnded{WinnerID: d.WinnerID, Results: d.Results, FinishedAt: d.FinishedAt}, nil

	case KindCodeUpdate:
		var d CodeUpdateData
		if err := m.decodeData(&d); err != nil {
			return nil, err
		}
		return duel.CodeUpdated{UserID: m.UserID, Code: d.Code, Language: d.Language}, nil

	case KindTestResult:
		var d duel.TestResult
		if err := m.decodeData(&d); err != nil {
			return nil, err
		}
		return duel.TestResulted{UserID: m.UserID, Result: d}, nil

	case KindTypingStatus:
		var d TypingStatusData
		if err := m.decodeData(&d); err != nil {
			return nil, err
		}
		return duel.TypingChanged{UserID: m.UserID, Typing: d.Typing}, nil

	case KindAIProgress:
		var d AIProgressData
		if err := m.decodeData(&d); err != nil {
			return nil, err
		}
		return duel.AIProgressed{UserID: m.UserID, Progress: d.Progress, Code: d.Code}, nil

	case KindAIDelete:
		var d AIDeleteData
		if err := m.decodeData(&d); err != nil {
			return nil, err
		}
		return duel.AIDeleted{UserID: m.UserID, Chars: d.Chars}, nil

	case KindPing, KindPong, KindError:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.Type)
	}
}

func (m Message) decodeData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrBadPayload, m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, m.Type, err)
	}
	return nil
}

func mustMessage(kind Kind, userID string, data any) Message {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err) // all payload types marshal cleanly
	}
	return Message{Type: kind, UserID: userID, Data: raw}
}

func NewDuelStart(d duel.Duel) Message {
	return mustMessage(KindDuelStart, "", DuelStartData{Duel: d})
}

func NewDuelEnd(winnerID string, results map[string]duel.TestResult, finishedAt time.Time) Message {
	return mustMessage(KindDuelEnd, "", DuelEndData{WinnerID: winnerID, Results: results, FinishedAt: finishedAt})
}

func NewCodeUpdate(userID, code, language string) Message {
	return mustMessage(KindCodeUpdate, userID, CodeUpdateData{Code: code, Language: language})
}

func NewTestResult(userID string, r duel.TestResult) Message {
	return mustMessage(KindTestResult, userID, r)
}

func NewTypingStatus(userID string, typing bool) Message {
	return mustMessage(KindTypingStatus, userID, TypingStatusData{Typing: typing})
}

func NewAIProgress(userID string, progress float64, code string) Message {
	return mustMessage(KindAIProgress, userID, AIProgressData{Progress: progress, Code: code})
}

func NewAIDelete(userID string, chars int) Message {
	return mustMessage(KindAIDelete, userID, AIDeleteData{Chars: chars})
}

func NewPing(userID string) Message {
	return Message{Type: KindPing, UserID: userID}
}

func NewPong() Message {
	return Message{Type: KindPong}
}

func NewError(code, msg string) Message {
	return mustMessage(KindError, "", ErrorData{Code: code, Message: msg})
}
