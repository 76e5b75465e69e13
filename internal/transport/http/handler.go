package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"skillforge/internal/app"
	"skillforge/internal/domain"
	"skillforge/internal/progression"
	"go.uber.org/zap"
)

// LeaderboardReader serves leaderboard reads; in production it is the Redis
// ranking cache wrapping the ranking service.
type LeaderboardReader interface {
	GlobalRanking(ctx context.Context, limit int, cohort []string) (domain.Leaderboard, error)
	WindowedRanking(ctx context.Context, windowDays, limit int, cohort []string) (domain.Leaderboard, error)
}

// Handler exposes the progression core over JSON endpoints. Authentication
// is external; requests carry pre-verified user IDs, and the administrative
// operations are gated by a deployment token.
type Handler struct {
	ledger     *app.LedgerService
	labs       *app.LabService
	quizzes    *app.QuizService
	rankings   *app.RankingService
	boards     LeaderboardReader
	adminToken string
	log        *zap.Logger

	defaultLimit      int
	defaultWindowDays int
}

func NewHandler(
	ledger *app.LedgerService,
	labs *app.LabService,
	quizzes *app.QuizService,
	rankings *app.RankingService,
	boards LeaderboardReader,
	adminToken string,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		ledger:            ledger,
		labs:              labs,
		quizzes:           quizzes,
		rankings:          rankings,
		boards:            boards,
		adminToken:        adminToken,
		log:               log,
		defaultLimit:      20,
		defaultWindowDays: 7,
	}
}

// SetRankingDefaults overrides the fallback leaderboard size and window used
// when a request omits the limit/days query parameters.
func (h *Handler) SetRankingDefaults(limit, windowDays int) {
	if limit > 0 {
		h.defaultLimit = limit
	}
	if windowDays > 0 {
		h.defaultWindowDays = windowDays
	}
}

// Register wires all routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/labs/{labID}/submissions", h.submitCommand)
	mux.HandleFunc("GET /v1/labs/{labID}/attempts/{userID}", h.labAttempt)

	mux.HandleFunc("POST /v1/lessons/{lessonID}/quiz/answers", h.answerQuestion)
	mux.HandleFunc("POST /v1/lessons/{lessonID}/quiz/retry", h.retryQuiz)
	mux.HandleFunc("POST /v1/lessons/{lessonID}/quiz/completions", h.completeQuiz)
	mux.HandleFunc("GET /v1/lessons/{lessonID}/quiz/completions/{userID}", h.quizCompletion)

	mux.HandleFunc("POST /v1/xp/grants", h.grantXP)
	mux.HandleFunc("DELETE /v1/users/{userID}/progress", h.resetProgress)

	mux.HandleFunc("GET /v1/users/{userID}", h.profile)
	mux.HandleFunc("GET /v1/users/{userID}/transactions", h.transactions)
	mux.HandleFunc("GET /v1/users/{userID}/rank", h.rankOf)

	mux.HandleFunc("GET /v1/rankings/global", h.globalRanking)
	mux.HandleFunc("GET /v1/rankings/weekly", h.weeklyRanking)
}

type submitCommandRequest struct {
	UserID  string `json:"userId"`
	Command string `json:"command"`
}

func (h *Handler) submitCommand(w http.ResponseWriter, r *http.Request) {
	var req submitCommandRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.labs.SubmitCommand(r.Context(), req.UserID, r.PathValue("labID"), req.Command)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) labAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, ok, err := h.labs.Attempt(r.Context(), r.PathValue("userID"), r.PathValue("labID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		h.writeError(w, domain.ErrLabNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, attempt)
}

type answerRequest struct {
	UserID      string `json:"userId"`
	OptionIndex int    `json:"optionIndex"`
}

func (h *Handler) answerQuestion(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.quizzes.AnswerQuestion(r.Context(), req.UserID, r.PathValue("lessonID"), req.OptionIndex)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type retryRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) retryQuiz(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.quizzes.Retry(r.Context(), req.UserID, r.PathValue("lessonID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeQuizRequest struct {
	UserID         string `json:"userId"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	SessionXP      int    `json:"sessionXp"`
}

func (h *Handler) completeQuiz(w http.ResponseWriter, r *http.Request) {
	var req completeQuizRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.quizzes.CompleteQuiz(r.Context(), req.UserID, r.PathValue("lessonID"), req.Score, req.TotalQuestions, req.SessionXP)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) quizCompletion(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := h.quizzes.Completion(r.Context(), r.PathValue("userID"), r.PathValue("lessonID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		h.writeError(w, domain.ErrQuizNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

type grantRequest struct {
	UserID      string `json:"userId"`
	Amount      int    `json:"amount"`
	Source      string `json:"source"`
	SourceID    string `json:"sourceId"`
	Description string `json:"description"`
}

func (h *Handler) grantXP(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(r) {
		h.writeError(w, domain.ErrPermissionDenied)
		return
	}
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	profile, err := h.ledger.GrantXP(r.Context(), domain.XPGrant{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Source:      domain.XPSource(req.Source),
		SourceID:    req.SourceID,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) resetProgress(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(r) {
		h.writeError(w, domain.ErrPermissionDenied)
		return
	}
	if err := h.ledger.ResetProgress(r.Context(), r.PathValue("userID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileResponse struct {
	domain.Profile
	ProgressPercent float64 `json:"progressPercent"`
	XPToNextLevel   int     `json:"xpToNextLevel"`
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.ledger.Profile(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, profileResponse{
		Profile:         profile,
		ProgressPercent: progression.ProgressPercent(profile.XP, profile.Level),
		XPToNextLevel:   progression.XPCeilForLevel(profile.Level) - profile.XP,
	})
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.Transactions(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) rankOf(w http.ResponseWriter, r *http.Request) {
	scope := app.RankScope{
		Cohort:     parseCohort(r),
		WindowDays: h.intQuery(r, "days", 0),
	}
	info, err := h.rankings.RankOf(r.Context(), r.PathValue("userID"), scope)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) globalRanking(w http.ResponseWriter, r *http.Request) {
	lb, err := h.boards.GlobalRanking(r.Context(), h.intQuery(r, "limit", h.defaultLimit), parseCohort(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) weeklyRanking(w http.ResponseWriter, r *http.Request) {
	lb, err := h.boards.WindowedRanking(
		r.Context(),
		h.intQuery(r, "days", h.defaultWindowDays),
		h.intQuery(r, "limit", h.defaultLimit),
		parseCohort(r),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) authorizeAdmin(r *http.Request) bool {
	return h.adminToken != "" && r.Header.Get("X-Admin-Token") == h.adminToken
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// parseCohort reads the pre-authorized cohort user IDs. Absent means
// unscoped; the service never resolves organizational hierarchy itself.
func parseCohort(r *http.Request) []string {
	raw := r.URL.Query().Get("cohort")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrLabNotFound),
		errors.Is(err, domain.ErrQuizNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidSource),
		errors.Is(err, domain.ErrEmptyCommand),
		errors.Is(err, domain.ErrOptionOutOfRange),
		errors.Is(err, domain.ErrInvalidScore):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyCompleted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Message: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("write response failed", zap.Error(err))
	}
}
