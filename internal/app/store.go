package app

import (
	"context"
	"time"

	"skillforge/internal/domain"
)

// ProgressStore abstracts durable progression state (Postgres in production,
// in-memory for tests/demos). Implementations own the atomicity guarantees:
// a grant writes the ledger entry and the profile update in one transaction,
// and the completion guards are conditional writes, never read-then-write.
type ProgressStore interface {
	Profile(ctx context.Context, userID string) (domain.Profile, error)
	Transactions(ctx context.Context, userID string) ([]domain.XPTransaction, error)

	// GrantXP appends a ledger entry and bumps the profile's XP, level,
	// streak and last-activity atomically. Amount must already be validated.
	GrantXP(ctx context.Context, grant domain.XPGrant) (domain.Profile, error)
	// ResetProgress wipes the user's transactions, lab attempts and quiz
	// completions and zeroes the profile counters.
	ResetProgress(ctx context.Context, userID string) error

	LabAttempt(ctx context.Context, userID, labID string) (domain.LabAttempt, bool, error)
	// RecordLabAttempt appends the sanitized command to the (user, lab)
	// history, creating the record on first submission.
	RecordLabAttempt(ctx context.Context, userID, labID, command string) (domain.LabAttempt, error)
	// CompleteLab marks the attempt completed and applies the grant in one
	// transaction, guarded so only one caller can ever win. Returns false
	// when the record was already completed. A grant with Amount <= 0
	// completes without touching the ledger.
	CompleteLab(ctx context.Context, userID, labID string, grant domain.XPGrant) (bool, error)

	QuizCompletion(ctx context.Context, userID, lessonID string) (domain.QuizCompletion, bool, error)
	// SaveQuizCompletion upserts the single (user, lesson) record. The grant
	// is applied only when this call created the record (first completion);
	// retakes overwrite score/total/timestamp for display and leave the
	// ledger alone. Returns whether this was the first completion.
	SaveQuizCompletion(ctx context.Context, rec domain.QuizCompletion, grant domain.XPGrant) (bool, error)

	// ProfilesByXP returns profiles with XP > 0 ordered by XP desc, then
	// creation time, then user ID. limit <= 0 means no limit. A non-nil
	// cohort restricts the scope to the given pre-authorized user IDs.
	ProfilesByXP(ctx context.Context, limit int, cohort []string) ([]domain.Profile, error)
	// WindowedTotals sums ledger entries created at or after since, ordered
	// by the windowed sum desc then user ID. Users with no entries in the
	// window are absent.
	WindowedTotals(ctx context.Context, since time.Time, limit int, cohort []string) ([]domain.WindowedTotal, error)
}

// ContentRepository loads lab and quiz definitions (cached over Postgres in
// production). The core trusts this content: accepted commands, correctness
// flags and rewards are authoring-time responsibilities.
type ContentRepository interface {
	Lab(ctx context.Context, labID string) (domain.Lab, error)
	Quiz(ctx context.Context, lessonID string) (domain.Quiz, error)
}

// QuizSessionStore holds in-flight quiz sessions keyed by (user, lesson).
type QuizSessionStore interface {
	Get(ctx context.Context, userID, lessonID string) (domain.QuizSession, bool, error)
	Save(ctx context.Context, session domain.QuizSession) error
	Delete(ctx context.Context, userID, lessonID string) error
}

// GrantNotifier is told after every successful grant so live consumers (the
// leaderboard feed) can refresh. Implementations must not block.
type GrantNotifier interface {
	XPGranted(userID string)
}
