package domain

import "time"

// XPSource identifies the kind of activity an XP transaction rewards.
type XPSource string

const (
	SourceLesson      XPSource = "lesson"
	SourceQuiz        XPSource = "quiz"
	SourceLab         XPSource = "lab"
	SourceAchievement XPSource = "achievement"
	SourceModule      XPSource = "module"
)

// ValidSource reports whether s is one of the known XP sources.
func ValidSource(s XPSource) bool {
	switch s {
	case SourceLesson, SourceQuiz, SourceLab, SourceAchievement, SourceModule:
		return true
	}
	return false
}

// Profile is the per-user progression record. XP is the fast-read cache of
// the transaction ledger; Level is derived from XP and recomputed on every
// grant, never trusted on its own.
type Profile struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	Handle       string    `json:"handle"`
	XP           int       `json:"xp"`
	Level        int       `json:"level"`
	Streak       int       `json:"streak"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// XPTransaction is one immutable ledger entry. Amounts are always positive;
// the only way entries disappear is a full progress reset.
type XPTransaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Amount      int       `json:"amount"`
	Source      XPSource  `json:"source"`
	SourceID    string    `json:"sourceId,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// XPGrant is the input to the ledger.
type XPGrant struct {
	UserID      string
	Amount      int
	Source      XPSource
	SourceID    string
	Description string
}

// Lab is an exercise scored by matching a submitted command against the
// accepted solutions. Hint is display-only and never feeds the matcher.
type Lab struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	AcceptedCommands []string `json:"acceptedCommands"`
	Hint             string   `json:"hint,omitempty"`
	XPReward         int      `json:"xpReward"`
}

// LabAttempt tracks one user's history against one lab. Completed flips
// false->true exactly once; CompletedAt is set iff Completed is true.
// BestTime is reserved; nothing writes it yet.
type LabAttempt struct {
	UserID       string     `json:"userId"`
	LabID        string     `json:"labId"`
	Attempts     int        `json:"attempts"`
	CommandsUsed []string   `json:"commandsUsed"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	BestTime     *int       `json:"bestTime,omitempty"`
}

// LabResult is the immediate feedback for a submission.
type LabResult struct {
	Correct   bool `json:"correct"`
	Completed bool `json:"completed"`
	AwardedXP int  `json:"awardedXp"`
}

// Option is a possible answer for a quiz question.
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is an MCQ with one correct option (authoring-time responsibility).
type Question struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Options     []Option `json:"options"`
	XPReward    int      `json:"xpReward"`
	Explanation string   `json:"explanation,omitempty"`
}

// Quiz is the ordered question list attached to a lesson.
type Quiz struct {
	LessonID  string     `json:"lessonId"`
	Questions []Question `json:"questions"`
}

// QuizSession is the in-flight state of one user working through a quiz.
// Answers holds the locked-in option index per answered question.
type QuizSession struct {
	UserID        string    `json:"userId"`
	LessonID      string    `json:"lessonId"`
	QuestionIndex int       `json:"questionIndex"`
	Answers       []int     `json:"answers"`
	Score         int       `json:"score"`
	SessionXP     int       `json:"sessionXp"`
	StartedAt     time.Time `json:"startedAt"`
}

// AnswerResult is the per-question feedback plus, once the final question is
// answered, the completion summary.
type AnswerResult struct {
	Correct        bool   `json:"correct"`
	Explanation    string `json:"explanation,omitempty"`
	QuestionIndex  int    `json:"questionIndex"`
	Finished       bool   `json:"finished"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	XPEarned       int    `json:"xpEarned"`
}

// QuizCompletion is the single persisted record per (user, lesson). Retakes
// overwrite Score/TotalQuestions/CompletedAt; XPEarned stays what the first
// completion granted.
type QuizCompletion struct {
	UserID         string    `json:"userId"`
	LessonID       string    `json:"lessonId"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	XPEarned       int       `json:"xpEarned"`
	CompletedAt    time.Time `json:"completedAt"`
}

// RankedEntry is one leaderboard row.
type RankedEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
}

// Leaderboard is a read-time ranking snapshot, never persisted.
type Leaderboard struct {
	Scope     string        `json:"scope"`
	Entries   []RankedEntry `json:"entries"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// WindowedTotal is the XP a user gained inside a trailing window.
type WindowedTotal struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
	XPGained    int    `json:"xpGained"`
}

// RankInfo locates one user inside a ranking scope. NextUserID/XPToNext are
// nil at rank 1; Rank is 0 when the user is not ranked at all.
type RankInfo struct {
	Rank       int     `json:"rank"`
	Total      int     `json:"total"`
	Percentile float64 `json:"percentile"`
	NextUserID *string `json:"nextUserId,omitempty"`
	NextName   string  `json:"nextName,omitempty"`
	XPToNext   *int    `json:"xpToNext,omitempty"`
}
