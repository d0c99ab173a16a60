package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/monlaf-sfk/battle-stack-sub001/internal/ai"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/hub"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/runner"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/session"
	"github.com/monlaf-sfk/battle-stack-sub001/internal/store"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/duel"
	"github.com/monlaf-sfk/battle-stack-sub001/pkg/protocol"
)

type Repos interface {
	store.ProblemRepo
	store.DuelRepo
	store.SubmissionRepo
}

// API wires the REST handlers to the hub, persistence and code runner.
type API struct {
	hub      *hub.Hub
	repos    Repos
	runner   runner.Runner
	validate *validator.Validate
	log      *zap.Logger

	// ctx outlives requests; AI drivers run on it.
	ctx context.Context
}

func NewAPI(ctx context.Context, h *hub.Hub, repos Repos, run runner.Runner, log *zap.Logger) *API {
	return &API{
		hub:      h,
		repos:    repos,
		runner:   run,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		ctx:      ctx,
	}
}

type createDuelRequest struct {
	ProblemID  string `json:"problem_id" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
	UserName   string `json:"user_name"`
	Mode       string `json:"mode" validate:"required,oneof=pvp pve"`
	OpponentID string `json:"opponent_id" validate:"required_if=Mode pvp"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Language   string `json:"language"`
}

func (a *API) CreateDuel(w http.ResponseWriter, r *http.Request) {
	var req createDuelRequest
	if !a.decode(w, r, &req) {
		return
	}

	problem, err := a.repos.GetProblem(r.Context(), req.ProblemID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "problem not found")
		return
	}
	if err != nil {
		a.fail(w, "get problem", err)
		return
	}

	lang := req.Language
	if lang == "" {
		lang = problem.Language
	}

	d := duel.Duel{
		ID:        uuid.NewString(),
		ProblemID: problem.ID,
		Mode:      duel.Mode(req.Mode),
		Status:    duel.StatusPending,
		CreatedAt: time.Now().UTC(),
		Participants: []duel.Participant{
			{UserID: req.UserID, Name: req.UserName, Code: problem.StarterCode, Language: lang},
		},
	}

	var aiUserID string
	if d.Mode == duel.ModePvE {
		aiUserID = "ai-" + uuid.NewString()
		d.Participants = append(d.Participants, duel.Participant{
			UserID: aiUserID, Name: "bot-" + req.Difficulty, IsAI: true,
			Code: problem.StarterCode, Language: lang,
		})
	} else {
		d.Participants = append(d.Participants, duel.Participant{
			UserID: req.OpponentID, Code: problem.StarterCode, Language: lang,
		})
	}

	rec := &store.DuelRecord{
		ID:         d.ID,
		ProblemID:  d.ProblemID,
		Mode:       string(d.Mode),
		Status:     string(duel.StatusInProgress),
		PlayerID:   req.UserID,
		OpponentID: d.Participants[1].UserID,
		CreatedAt:  d.CreatedAt,
	}
	if err := a.repos.CreateDuel(r.Context(), rec); err != nil {
		a.fail(w, "create duel", err)
		return
	}

	reply := make(chan *session.Session, 1)
	a.hub.Inbox() <- hub.CreateSession{Duel: d, Reply: reply}
	s := <-reply
	if s == nil {
		a.fail(w, "create session", errors.New("nil session"))
		return
	}
	// The session is live, so the caller sees the post-start status.
	d.Status = duel.StatusInProgress

	if d.Mode == duel.ModePvE {
		cfg := ai.ConfigFor(req.Difficulty)
		cfg.TotalTests = len(problem.TestCases)
		op := ai.NewOpponent(aiUserID, problem.Solution, cfg, s, a.log)
		go op.Run(a.ctx)
	}

	respondJSON(w, http.StatusCreated, d)
}

func (a *API) GetDuel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "duelID")

	if s := a.hub.Session(id); s != nil {
		reply := make(chan session.View, 1)
		s.Inbox() <- session.GetView{Reply: reply}
		v := <-reply
		respondJSON(w, http.StatusOK, v.State.Duel)
		return
	}

	rec, err := a.repos.GetDuel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "duel not found")
		return
	}
	if err != nil {
		a.fail(w, "get duel", err)
		return
	}
	respondJSON(w, http.StatusOK, recordDuel(rec))
}

// recordDuel maps a persisted record into the same shape a live session
// serves, so the endpoint speaks one schema regardless of which branch
// answered.
func recordDuel(rec *store.DuelRecord) duel.Duel {
	d := duel.Duel{
		ID:         rec.ID,
		ProblemID:  rec.ProblemID,
		Mode:       duel.Mode(rec.Mode),
		Status:     duel.Status(rec.Status),
		WinnerID:   rec.WinnerID,
		CreatedAt:  rec.CreatedAt,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Participants: []duel.Participant{
			{UserID: rec.PlayerID},
			{UserID: rec.OpponentID},
		},
	}
	for i := range d.Participants {
		p := &d.Participants[i]
		p.Winner = rec.WinnerID != "" && p.UserID == rec.WinnerID
	}
	return d
}

type runCodeRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Language string `json:"language" validate:"required"`
}

// TestCode runs the public cases only and never completes the duel.
func (a *API) TestCode(w http.ResponseWriter, r *http.Request) {
	a.runCode(w, r, "test")
}

// SubmitCode runs all cases; a fully passing run wins the duel.
func (a *API) SubmitCode(w http.ResponseWriter, r *http.Request) {
	a.runCode(w, r, "submit")
}

func (a *API) runCode(w http.ResponseWriter, r *http.Request, kind string) {
	duelID := chi.URLParam(r, "duelID")
	var req runCodeRequest
	if !a.decode(w, r, &req) {
		return
	}

	s := a.hub.Session(duelID)
	if s == nil {
		respondError(w, http.StatusNotFound, "duel not active")
		return
	}

	rec, err := a.repos.GetDuel(r.Context(), duelID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "duel not found")
		return
	}
	if err != nil {
		a.fail(w, "get duel", err)
		return
	}

	problem, err := a.repos.GetProblem(r.Context(), rec.ProblemID)
	if err != nil {
		a.fail(w, "get problem", err)
		return
	}

	cases := problem.TestCases
	if kind == "test" {
		cases = problem.PublicCases()
	}

	res, err := a.runner.Run(r.Context(), req.Code, req.Language, cases)
	if err != nil {
		// Runner failure counts as a zero-pass run, not a 500; the
		// duel keeps going.
		a.log.Warn("runner failed", zap.String("duel_id", duelID), zap.Error(err))
		res = runner.Result{Total: len(cases), Output: err.Error()}
	}

	sub := &store.Submission{
		ID:        uuid.NewString(),
		DuelID:    duelID,
		UserID:    req.UserID,
		Kind:      kind,
		Code:      req.Code,
		Language:  req.Language,
		Passed:    res.Passed,
		Total:     res.Total,
		Success:   res.Success,
		Output:    res.Output,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.repos.CreateSubmission(r.Context(), sub); err != nil {
		a.log.Error("record submission", zap.Error(err))
	}

	result := duel.TestResult{
		Passed:     res.Passed,
		Total:      res.Total,
		FinishedAt: time.Now().UTC(),
	}
	if !res.Success {
		result.Error = res.Output
	}
	s.Inbox() <- session.Inbound{Msg: protocol.NewTestResult(req.UserID, result)}

	if kind == "submit" && res.Success {
		s.Inbox() <- session.Complete{
			WinnerID: req.UserID,
			Results:  map[string]duel.TestResult{req.UserID: result},
		}
		rec.Status = string(duel.StatusCompleted)
		rec.WinnerID = req.UserID
		now := time.Now().UTC()
		rec.FinishedAt = &now
		if err := a.repos.UpdateDuel(r.Context(), rec); err != nil {
			a.log.Error("update duel record", zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, res)
}

func (a *API) DashboardStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	stats, err := a.repos.StatsFor(r.Context(), userID)
	if err != nil {
		a.fail(w, "dashboard stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type problemRequest struct {
	Title       string           `json:"title" validate:"required,min=3"`
	Description string           `json:"description"`
	Difficulty  string           `json:"difficulty" validate:"required,oneof=easy medium hard"`
	Language    string           `json:"language" validate:"required"`
	StarterCode string           `json:"starter_code"`
	Solution    string           `json:"solution" validate:"required"`
	TestCases   []store.TestCase `json:"test_cases" validate:"required,min=1,dive"`
}

func (a *API) CreateProblem(w http.ResponseWriter, r *http.Request) {
	var req problemRequest
	if !a.decode(w, r, &req) {
		return
	}

	p := &store.Problem{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Difficulty:  req.Difficulty,
		Language:    req.Language,
		StarterCode: req.StarterCode,
		Solution:    req.Solution,
		TestCases:   req.TestCases,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.repos.CreateProblem(r.Context(), p); err != nil {
		a.fail(w, "create problem", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (a *API) UpdateProblem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "problemID")
	var req problemRequest
	if !a.decode(w, r, &req) {
		return
	}

	p := &store.Problem{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Difficulty:  req.Difficulty,
		Language:    req.Language,
		StarterCode: req.StarterCode,
		Solution:    req.Solution,
		TestCases:   req.TestCases,
	}
	err := a.repos.UpdateProblem(r.Context(), p)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "problem not found")
		return
	}
	if err != nil {
		a.fail(w, "update problem", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (a *API) ListProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := a.repos.ListProblems(r.Context())
	if err != nil {
		a.fail(w, "list problems", err)
		return
	}
	respondJSON(w, http.StatusOK, problems)
}

func (a *API) GetProblem(w http.ResponseWriter, r *http.Request) {
	p, err := a.repos.GetProblem(r.Context(), chi.URLParam(r, "problemID"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "problem not found")
		return
	}
	if err != nil {
		a.fail(w, "get problem", err)
		return
	}
	// Players must not see the solution or hidden expectations.
	p.Solution = ""
	respondJSON(w, http.StatusOK, p)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := a.validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (a *API) fail(w http.ResponseWriter, op string, err error) {
	a.log.Error(op, zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
