package app

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"skillforge/internal/domain"
)

// maxCommandLength bounds stored command history per submission.
const maxCommandLength = 500

var markupTags = regexp.MustCompile(`<[^>]*>`)

// LabService evaluates free-text command submissions against a lab's
// accepted solutions. History is persisted for every submission; the XP
// reward fires at most once per (user, lab) no matter how often a correct
// command is resubmitted.
type LabService struct {
	content  ContentRepository
	store    ProgressStore
	notifier GrantNotifier
}

func NewLabService(content ContentRepository, store ProgressStore) *LabService {
	return &LabService{content: content, store: store}
}

func (s *LabService) SetNotifier(n GrantNotifier) {
	s.notifier = n
}

// SanitizeCommand trims, truncates to maxCommandLength bytes and strips
// markup tags so the stored history is safe to render as text. The cut never
// splits a multi-byte rune; the stored string stays valid UTF-8.
func SanitizeCommand(raw string) string {
	cmd := strings.TrimSpace(raw)
	if len(cmd) > maxCommandLength {
		cut := maxCommandLength
		for cut > 0 && !utf8.RuneStart(cmd[cut]) {
			cut--
		}
		cmd = cmd[:cut]
	}
	cmd = markupTags.ReplaceAllString(cmd, "")
	return strings.TrimSpace(cmd)
}

// SubmitCommand records one attempt and reports whether it solved the lab.
// Matching is exact (no fuzzy or partial matches) and case-insensitive over
// the sanitized command.
func (s *LabService) SubmitCommand(ctx context.Context, userID, labID, rawCommand string) (domain.LabResult, error) {
	lab, err := s.content.Lab(ctx, labID)
	if err != nil {
		return domain.LabResult{}, err
	}

	command := SanitizeCommand(rawCommand)
	if command == "" {
		return domain.LabResult{}, domain.ErrEmptyCommand
	}

	normalized := strings.ToLower(command)
	correct := false
	for _, accepted := range lab.AcceptedCommands {
		if strings.ToLower(strings.TrimSpace(accepted)) == normalized {
			correct = true
			break
		}
	}

	// Every submission lands in the history, correct or not.
	attempt, err := s.store.RecordLabAttempt(ctx, userID, labID, command)
	if err != nil {
		return domain.LabResult{}, err
	}

	result := domain.LabResult{Correct: correct, Completed: attempt.Completed}
	if !correct || attempt.Completed {
		return result, nil
	}

	grant := domain.XPGrant{
		UserID:      userID,
		Amount:      lab.XPReward,
		Source:      domain.SourceLab,
		SourceID:    labID,
		Description: "Lab completed: " + lab.Title,
	}
	won, err := s.store.CompleteLab(ctx, userID, labID, grant)
	if err != nil {
		// Losing the guard race means another submission completed first;
		// same observable outcome as arriving second.
		if errors.Is(err, domain.ErrAlreadyCompleted) {
			result.Completed = true
			return result, nil
		}
		return domain.LabResult{}, err
	}
	result.Completed = true
	if won {
		result.AwardedXP = lab.XPReward
		if s.notifier != nil && lab.XPReward > 0 {
			s.notifier.XPGranted(userID)
		}
	}
	return result, nil
}

// Attempt exposes the persisted (user, lab) history for progress displays.
func (s *LabService) Attempt(ctx context.Context, userID, labID string) (domain.LabAttempt, bool, error) {
	return s.store.LabAttempt(ctx, userID, labID)
}
