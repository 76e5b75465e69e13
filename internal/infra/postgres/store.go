package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"skillforge/internal/domain"
	"skillforge/internal/progression"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Store is the bun-backed implementation of app.ProgressStore. Grants run
// inside a single database transaction (ledger insert + profile update), and
// the at-most-once guards are conditional writes, so concurrent submissions
// cannot double-reward.
type Store struct {
	db    *bun.DB
	now   func() time.Time
	newID func() string
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now, newID: uuid.NewString}
}

// WithClock is test-only for deterministic timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

type profileRow struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	UserID       string    `bun:"user_id,pk"`
	DisplayName  string    `bun:"display_name"`
	Handle       string    `bun:"handle"`
	XP           int       `bun:"xp"`
	Level        int       `bun:"level"`
	Streak       int       `bun:"streak"`
	LastActiveAt time.Time `bun:"last_active_at,nullzero"`
	CreatedAt    time.Time `bun:"created_at,nullzero,default:now()"`
}

func (r *profileRow) toDomain() domain.Profile {
	return domain.Profile{
		UserID:       r.UserID,
		DisplayName:  r.DisplayName,
		Handle:       r.Handle,
		XP:           r.XP,
		Level:        r.Level,
		Streak:       r.Streak,
		LastActiveAt: r.LastActiveAt,
		CreatedAt:    r.CreatedAt,
	}
}

type transactionRow struct {
	bun.BaseModel `bun:"table:xp_transactions,alias:t"`

	ID          string    `bun:"id,pk"`
	UserID      string    `bun:"user_id"`
	Amount      int       `bun:"amount"`
	Source      string    `bun:"source"`
	SourceID    string    `bun:"source_id"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at"`
}

type labAttemptRow struct {
	bun.BaseModel `bun:"table:lab_attempts,alias:la"`

	UserID       string     `bun:"user_id,pk"`
	LabID        string     `bun:"lab_id,pk"`
	Attempts     int        `bun:"attempts"`
	CommandsUsed []string   `bun:"commands_used,array"`
	Completed    bool       `bun:"completed"`
	CompletedAt  *time.Time `bun:"completed_at"`
	BestTime     *int       `bun:"best_time"`
}

func (r *labAttemptRow) toDomain() domain.LabAttempt {
	return domain.LabAttempt{
		UserID:       r.UserID,
		LabID:        r.LabID,
		Attempts:     r.Attempts,
		CommandsUsed: r.CommandsUsed,
		Completed:    r.Completed,
		CompletedAt:  r.CompletedAt,
		BestTime:     r.BestTime,
	}
}

type completionRow struct {
	bun.BaseModel `bun:"table:quiz_completions,alias:qc"`

	UserID         string    `bun:"user_id,pk"`
	LessonID       string    `bun:"lesson_id,pk"`
	Score          int       `bun:"score"`
	TotalQuestions int       `bun:"total_questions"`
	XPEarned       int       `bun:"xp_earned"`
	CompletedAt    time.Time `bun:"completed_at"`
}

type windowedTotalRow struct {
	UserID      string `bun:"user_id"`
	DisplayName string `bun:"display_name"`
	Handle      string `bun:"handle"`
	XPGained    int    `bun:"xp_gained"`
}

// CreateProfile seeds a user; account provisioning is otherwise external.
func (s *Store) CreateProfile(ctx context.Context, p domain.Profile) error {
	row := &profileRow{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Handle:      p.Handle,
		XP:          p.XP,
		Level:       progression.LevelForXP(p.XP),
		Streak:      p.Streak,
		CreatedAt:   p.CreatedAt,
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (s *Store) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	row := new(profileRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) Transactions(ctx context.Context, userID string) ([]domain.XPTransaction, error) {
	if err := s.requireProfile(ctx, userID); err != nil {
		return nil, err
	}
	var rows []transactionRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.XPTransaction, len(rows))
	for i, r := range rows {
		out[i] = domain.XPTransaction{
			ID:          r.ID,
			UserID:      r.UserID,
			Amount:      r.Amount,
			Source:      domain.XPSource(r.Source),
			SourceID:    r.SourceID,
			Description: r.Description,
			CreatedAt:   r.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) GrantXP(ctx context.Context, grant domain.XPGrant) (domain.Profile, error) {
	var out domain.Profile
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		profile, err := s.grantTx(ctx, tx, grant)
		if err != nil {
			return err
		}
		out = profile
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return out, nil
}

// grantTx appends the ledger entry and refreshes the profile cache fields
// under a row lock. Callers own the enclosing transaction.
func (s *Store) grantTx(ctx context.Context, tx bun.Tx, grant domain.XPGrant) (domain.Profile, error) {
	row := new(profileRow)
	err := tx.NewSelect().Model(row).Where("user_id = ?", grant.UserID).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Profile{}, err
	}

	now := s.now()
	entry := &transactionRow{
		ID:          s.newID(),
		UserID:      grant.UserID,
		Amount:      grant.Amount,
		Source:      string(grant.Source),
		SourceID:    grant.SourceID,
		Description: grant.Description,
		CreatedAt:   now,
	}
	if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
		return domain.Profile{}, err
	}

	row.XP += grant.Amount
	row.Level = progression.LevelForXP(row.XP)
	row.Streak = progression.NextStreak(row.LastActiveAt, row.Streak, now)
	row.LastActiveAt = now
	_, err = tx.NewUpdate().Model(row).
		Column("xp", "level", "streak", "last_active_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ResetProgress(ctx context.Context, userID string) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*profileRow)(nil)).
			Set("xp = 0").
			Set("level = 1").
			Set("streak = 0").
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return domain.ErrUserNotFound
		}
		if _, err := tx.NewDelete().Model((*transactionRow)(nil)).Where("user_id = ?", userID).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*labAttemptRow)(nil)).Where("user_id = ?", userID).Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewDelete().Model((*completionRow)(nil)).Where("user_id = ?", userID).Exec(ctx)
		return err
	})
}

func (s *Store) LabAttempt(ctx context.Context, userID, labID string) (domain.LabAttempt, bool, error) {
	row := new(labAttemptRow)
	err := s.db.NewSelect().Model(row).
		Where("user_id = ? AND lab_id = ?", userID, labID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LabAttempt{}, false, nil
	}
	if err != nil {
		return domain.LabAttempt{}, false, err
	}
	return row.toDomain(), true, nil
}

func (s *Store) RecordLabAttempt(ctx context.Context, userID, labID, command string) (domain.LabAttempt, error) {
	if err := s.requireProfile(ctx, userID); err != nil {
		return domain.LabAttempt{}, err
	}
	row := &labAttemptRow{
		UserID:       userID,
		LabID:        labID,
		Attempts:     1,
		CommandsUsed: []string{command},
	}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (user_id, lab_id) DO UPDATE").
		Set("attempts = la.attempts + 1").
		Set("commands_used = array_append(la.commands_used, ?)", command).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.LabAttempt{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) CompleteLab(ctx context.Context, userID, labID string, grant domain.XPGrant) (bool, error) {
	won := false
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		now := s.now()
		// The WHERE completed = FALSE guard serializes concurrent submissions:
		// exactly one update sticks, everyone else sees zero rows.
		res, err := tx.NewUpdate().Model((*labAttemptRow)(nil)).
			Set("completed = TRUE").
			Set("completed_at = ?", now).
			Where("user_id = ? AND lab_id = ? AND completed = FALSE", userID, labID).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return nil
		}
		won = true
		if grant.Amount > 0 {
			if _, err := s.grantTx(ctx, tx, grant); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (s *Store) QuizCompletion(ctx context.Context, userID, lessonID string) (domain.QuizCompletion, bool, error) {
	row := new(completionRow)
	err := s.db.NewSelect().Model(row).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizCompletion{}, false, nil
	}
	if err != nil {
		return domain.QuizCompletion{}, false, err
	}
	return domain.QuizCompletion{
		UserID:         row.UserID,
		LessonID:       row.LessonID,
		Score:          row.Score,
		TotalQuestions: row.TotalQuestions,
		XPEarned:       row.XPEarned,
		CompletedAt:    row.CompletedAt,
	}, true, nil
}

func (s *Store) SaveQuizCompletion(ctx context.Context, rec domain.QuizCompletion, grant domain.XPGrant) (bool, error) {
	if err := s.requireProfile(ctx, rec.UserID); err != nil {
		return false, err
	}
	first := false
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		row := &completionRow{
			UserID:         rec.UserID,
			LessonID:       rec.LessonID,
			Score:          rec.Score,
			TotalQuestions: rec.TotalQuestions,
			XPEarned:       rec.XPEarned,
			CompletedAt:    rec.CompletedAt,
		}
		// DO NOTHING keeps the insert conditional: rows affected tells us
		// whether this run-through was the first completion.
		res, err := tx.NewInsert().Model(row).
			On("CONFLICT (user_id, lesson_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		if affected == 1 {
			first = true
			if grant.Amount > 0 {
				if _, err := s.grantTx(ctx, tx, grant); err != nil {
					return err
				}
			}
			return nil
		}
		// Retake: refresh the display fields, keep the granted XP as-is.
		_, err = tx.NewUpdate().Model(row).
			Column("score", "total_questions", "completed_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return false, err
	}
	return first, nil
}

func (s *Store) ProfilesByXP(ctx context.Context, limit int, cohort []string) ([]domain.Profile, error) {
	if cohort != nil && len(cohort) == 0 {
		return nil, nil
	}
	var rows []profileRow
	q := s.db.NewSelect().Model(&rows).
		Where("xp > 0").
		OrderExpr("xp DESC, created_at ASC, user_id ASC")
	if cohort != nil {
		q = q.Where("user_id IN (?)", bun.In(cohort))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Profile, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) WindowedTotals(ctx context.Context, since time.Time, limit int, cohort []string) ([]domain.WindowedTotal, error) {
	if cohort != nil && len(cohort) == 0 {
		return nil, nil
	}
	var rows []windowedTotalRow
	q := s.db.NewSelect().
		ColumnExpr("t.user_id").
		ColumnExpr("p.display_name").
		ColumnExpr("p.handle").
		ColumnExpr("SUM(t.amount) AS xp_gained").
		TableExpr("xp_transactions AS t").
		Join("JOIN profiles AS p ON p.user_id = t.user_id").
		Where("t.created_at >= ?", since).
		GroupExpr("t.user_id, p.display_name, p.handle").
		OrderExpr("xp_gained DESC, t.user_id ASC")
	if cohort != nil {
		q = q.Where("t.user_id IN (?)", bun.In(cohort))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.WindowedTotal, len(rows))
	for i, r := range rows {
		out[i] = domain.WindowedTotal{
			UserID:      r.UserID,
			DisplayName: r.DisplayName,
			Handle:      r.Handle,
			XPGained:    r.XPGained,
		}
	}
	return out, nil
}

func (s *Store) requireProfile(ctx context.Context, userID string) error {
	exists, err := s.db.NewSelect().Model((*profileRow)(nil)).Where("user_id = ?", userID).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return nil
}
