package ai

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/monlaf-sfk/battle-stack-sub001/internal/session"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/duel"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/protocol"
)

// Config controls the typing simulation. Difficulty maps to speed: a
// harder opponent types faster and finishes sooner.
type Config struct {
	TypeInterval time.Duration // delay between typed chunks
	ChunkSize    int           // characters per chunk
	DeleteEvery  int           // every Nth chunk is preceded by a deletion
	DeleteChars  int           // characters removed per deletion
	TotalTests   int           // test count reported in the final result
}

func ConfigFor(difficulty string) Config {
	cfg := Config{
		TypeInterval: 900 * time.Millisecond,
		ChunkSize:    6,
		DeleteEvery:  7,
		DeleteChars:  4,
		TotalTests:   5,
	}
	switch difficulty {
	case "easy":
		cfg.TypeInterval = 1500 * time.Millisecond
	case "hard":
		cfg.TypeInterval = 400 * time.Millisecond
		cfg.DeleteEvery = 11
	}
	return cfg
}

// Opponent simulates the AI side of a PvE duel: it types a solution in
// chunks, occasionally deletes a few characters, reports progress, and
// completes the duel with a fully passing result once done.
type Opponent struct {
	userID   string
	solution string
	cfg      Config
	inbox    chan<- session.Msg
	log      *zap.Logger
}

func NewOpponent(userID, solution string, cfg Config, s *session.Session, log *zap.Logger) *Opponent {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 6
	}
	return &Opponent{
		userID:   userID,
		solution: solution,
		cfg:      cfg,
		inbox:    s.Inbox(),
		log:      log.With(zap.String("ai_user", userID)),
	}
}

// Run types until the solution is complete or the context is cancelled.
// It is meant to be started as a goroutine alongside the session.
func (o *Opponent) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.TypeInterval)
	defer ticker.Stop()

	// Chunk on rune boundaries so a multi-byte solution never produces a
	// torn, invalid UTF-8 frame.
	solution := []rune(o.solution)
	typed := 0
	step := 0
	for typed < len(solution) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		step++

		if o.cfg.DeleteEvery > 0 && step%o.cfg.DeleteEvery == 0 && typed > o.cfg.DeleteChars {
			typed -= o.cfg.DeleteChars
			o.send(ctx, session.Inbound{Msg: protocol.NewAIDelete(o.userID, o.cfg.DeleteChars)})
			continue
		}

		typed += o.cfg.ChunkSize
		if typed > len(solution) {
			typed = len(solution)
		}
		progress := float64(typed) / float64(len(solution)) * 100
		o.send(ctx, session.Inbound{Msg: protocol.NewAIProgress(o.userID, progress, string(solution[:typed]))})
	}

	result := duel.TestResult{
		Passed:     o.cfg.TotalTests,
		Total:      o.cfg.TotalTests,
		FinishedAt: time.Now().UTC(),
	}
	o.send(ctx, session.Inbound{Msg: protocol.NewTestResult(o.userID, result)})
	o.send(ctx, session.Complete{
		WinnerID: o.userID,
		Results:  map[string]duel.TestResult{o.userID: result},
	})
	o.log.Info("ai opponent finished")
}

func (o *Opponent) send(ctx context.Context, m session.Msg) {
	select {
	case o.inbox <- m:
	case <-ctx.Done():
	}
}
