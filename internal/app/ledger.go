package app

import (
	"context"

	"skillforge/internal/domain"
)

// LedgerService is the XP ledger use cases: reward-only grants and the
// administrative full reset. The profile XP field is the fast-read cache;
// the transaction list is the audit trail.
type LedgerService struct {
	store    ProgressStore
	notifier GrantNotifier
}

func NewLedgerService(store ProgressStore) *LedgerService {
	return &LedgerService{store: store}
}

// SetNotifier wires the post-grant hook; nil disables it.
func (s *LedgerService) SetNotifier(n GrantNotifier) {
	s.notifier = n
}

// GrantXP validates and applies a grant. Zero and negative amounts are
// rejected; deductions only happen through ResetProgress.
func (s *LedgerService) GrantXP(ctx context.Context, grant domain.XPGrant) (domain.Profile, error) {
	if grant.Amount <= 0 {
		return domain.Profile{}, domain.ErrInvalidAmount
	}
	if !domain.ValidSource(grant.Source) {
		return domain.Profile{}, domain.ErrInvalidSource
	}
	profile, err := s.store.GrantXP(ctx, grant)
	if err != nil {
		return domain.Profile{}, err
	}
	s.notify(grant.UserID)
	return profile, nil
}

// ResetProgress deletes all transactions and progress records and zeroes the
// profile. Destructive and administrative-only; authorization is checked by
// the caller before it gets here.
func (s *LedgerService) ResetProgress(ctx context.Context, userID string) error {
	if err := s.store.ResetProgress(ctx, userID); err != nil {
		return err
	}
	s.notify(userID)
	return nil
}

// Profile returns the user's progression record.
func (s *LedgerService) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	return s.store.Profile(ctx, userID)
}

// Transactions returns the user's full ledger, newest first.
func (s *LedgerService) Transactions(ctx context.Context, userID string) ([]domain.XPTransaction, error) {
	return s.store.Transactions(ctx, userID)
}

func (s *LedgerService) notify(userID string) {
	if s.notifier != nil {
		s.notifier.XPGranted(userID)
	}
}
