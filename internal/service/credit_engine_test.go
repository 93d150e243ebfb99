package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCreditLedger is a mock implementation of CreditLedgerRepository
type MockCreditLedger struct {
	ListEntitlementsFunc   func(ctx context.Context, studioID, memberID string) ([]domain.Entitlement, error)
	DeductFunc             func(ctx context.Context, credit domain.ResolvedCredit) (domain.ResolvedCredit, error)
	RefundFunc             func(ctx context.Context, credit domain.ResolvedCredit) error
	CreateCompGrantFunc    func(ctx context.Context, grant *domain.CompClass) error
	CountSubscriptionsFunc func(ctx context.Context, studioID, memberID string) (int, error)
}

func (m *MockCreditLedger) ListEntitlements(ctx context.Context, studioID, memberID string) ([]domain.Entitlement, error) {
	if m.ListEntitlementsFunc != nil {
		return m.ListEntitlementsFunc(ctx, studioID, memberID)
	}
	return nil, nil
}

func (m *MockCreditLedger) Deduct(ctx context.Context, credit domain.ResolvedCredit) (domain.ResolvedCredit, error) {
	if m.DeductFunc != nil {
		return m.DeductFunc(ctx, credit)
	}
	return credit, nil
}

func (m *MockCreditLedger) Refund(ctx context.Context, credit domain.ResolvedCredit) error {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, credit)
	}
	return nil
}

func (m *MockCreditLedger) CreateCompGrant(ctx context.Context, grant *domain.CompClass) error {
	if m.CreateCompGrantFunc != nil {
		return m.CreateCompGrantFunc(ctx, grant)
	}
	return nil
}

func (m *MockCreditLedger) CountSubscriptions(ctx context.Context, studioID, memberID string) (int, error) {
	if m.CountSubscriptionsFunc != nil {
		return m.CountSubscriptionsFunc(ctx, studioID, memberID)
	}
	return 0, nil
}

func TestCreditEngine_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("comp class wins over unlimited subscription", func(t *testing.T) {
		f := newFixture(t)
		f.addUnlimited("m1")
		f.store.AddCompGrant(&domain.CompClass{ID: "comp-1", StudioID: testStudio, MemberID: "m1", RemainingClasses: 1})

		credit, err := f.credits.Resolve(ctx, testStudio, "m1")
		require.NoError(t, err)
		assert.Equal(t, domain.CreditSourceCompClass, credit.Source)
		assert.Equal(t, "comp-1", credit.SourceID)
		assert.Equal(t, 0, *credit.RemainingAfter)

		// read-only
		grant, _ := f.store.CompGrant("comp-1")
		assert.Equal(t, 1, grant.RemainingClasses)
	})

	t.Run("expired comp falls through to pack", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddCompGrant(&domain.CompClass{
			ID: "comp-1", StudioID: testStudio, MemberID: "m1", RemainingClasses: 3,
			ExpiresAt: timePtr(testNow.Add(-1)),
		})
		f.addPack("pack-1", "m1", 2)

		credit, err := f.credits.Resolve(ctx, testStudio, "m1")
		require.NoError(t, err)
		assert.Equal(t, domain.CreditSourceClassPack, credit.Source)
		assert.Equal(t, 1, *credit.RemainingAfter)
	})

	t.Run("no credits", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.credits.Resolve(ctx, testStudio, "m1")
		assert.ErrorIs(t, err, domain.ErrNoCredits)
	})

	t.Run("other studio credit does not count", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddClassPack(&domain.ClassPack{ID: "pack-x", StudioID: "studio-2", MemberID: "m1", RemainingClasses: 5})
		_, err := f.credits.Resolve(ctx, testStudio, "m1")
		assert.ErrorIs(t, err, domain.ErrNoCredits)
	})
}

func TestCreditEngine_ResolveAndDeduct_SkipsSourceSpentConcurrently(t *testing.T) {
	comp := &domain.CompClass{ID: "comp-1", StudioID: testStudio, MemberID: "m1", RemainingClasses: 1}
	pack := &domain.ClassPack{ID: "pack-1", StudioID: testStudio, MemberID: "m1", RemainingClasses: 4}

	var attempted []string
	ledger := &MockCreditLedger{
		ListEntitlementsFunc: func(ctx context.Context, studioID, memberID string) ([]domain.Entitlement, error) {
			return []domain.Entitlement{pack, comp}, nil
		},
		DeductFunc: func(ctx context.Context, credit domain.ResolvedCredit) (domain.ResolvedCredit, error) {
			attempted = append(attempted, credit.SourceID)
			if credit.SourceID == "comp-1" {
				// another booking consumed the last comp credit
				return domain.ResolvedCredit{}, domain.ErrCreditExhausted
			}
			return domain.ResolvedCredit{Source: credit.Source, SourceID: credit.SourceID, RemainingAfter: intPtr(3)}, nil
		},
	}
	engine := NewCreditEngine(ledger, clock.NewFixed(testNow))

	credit, err := engine.ResolveAndDeduct(context.Background(), testStudio, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"comp-1", "pack-1"}, attempted)
	assert.Equal(t, domain.CreditSourceClassPack, credit.Source)
	assert.Equal(t, 3, *credit.RemainingAfter)
}

func TestCreditEngine_ResolveAndDeduct_AllSpent(t *testing.T) {
	ledger := &MockCreditLedger{
		ListEntitlementsFunc: func(ctx context.Context, studioID, memberID string) ([]domain.Entitlement, error) {
			return []domain.Entitlement{&domain.ClassPack{ID: "pack-1", RemainingClasses: 1}}, nil
		},
		DeductFunc: func(ctx context.Context, credit domain.ResolvedCredit) (domain.ResolvedCredit, error) {
			return domain.ResolvedCredit{}, domain.ErrCreditExhausted
		},
	}
	engine := NewCreditEngine(ledger, clock.NewFixed(testNow))

	_, err := engine.ResolveAndDeduct(context.Background(), testStudio, "m1")
	assert.ErrorIs(t, err, domain.ErrNoCredits)
}

func TestCreditEngine_ResolveAndDeduct_LedgerError(t *testing.T) {
	boom := errors.New("connection reset")
	ledger := &MockCreditLedger{
		ListEntitlementsFunc: func(ctx context.Context, studioID, memberID string) ([]domain.Entitlement, error) {
			return nil, boom
		},
	}
	engine := NewCreditEngine(ledger, clock.NewFixed(testNow))

	_, err := engine.ResolveAndDeduct(context.Background(), testStudio, "m1")
	assert.ErrorIs(t, err, boom)
}

func TestCreditEngine_DeductRefundSymmetry(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		seed  func(f *fixture)
		state func(f *fixture) int
	}{
		{
			name: "comp class",
			seed: func(f *fixture) {
				f.store.AddCompGrant(&domain.CompClass{ID: "comp-1", StudioID: testStudio, MemberID: "m1", RemainingClasses: 2})
			},
			state: func(f *fixture) int { g, _ := f.store.CompGrant("comp-1"); return g.RemainingClasses },
		},
		{
			name: "limited subscription",
			seed: func(f *fixture) {
				f.store.AddSubscriptionLimited(&domain.SubscriptionLimited{
					ID: "lim-1", StudioID: testStudio, MemberID: "m1", Status: domain.SubscriptionStatusActive,
					ClassLimit: 8, ClassesUsedThisPeriod: 3,
				})
			},
			state: func(f *fixture) int { s, _ := f.store.SubscriptionLimited("lim-1"); return s.ClassesUsedThisPeriod },
		},
		{
			name:  "class pack",
			seed:  func(f *fixture) { f.addPack("pack-1", "m1", 1) },
			state: func(f *fixture) int { p, _ := f.store.ClassPack("pack-1"); return p.RemainingClasses },
		},
		{
			name:  "unlimited subscription",
			seed:  func(f *fixture) { f.addUnlimited("m1") },
			state: func(f *fixture) int { return 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.seed(f)
			before := tt.state(f)

			credit, err := f.credits.ResolveAndDeduct(ctx, testStudio, "m1")
			require.NoError(t, err)
			require.NoError(t, f.credits.Refund(ctx, credit))

			assert.Equal(t, before, tt.state(f))
		})
	}
}

func TestCreditEngine_RefundRejectsMissingSource(t *testing.T) {
	f := newFixture(t)
	err := f.credits.Refund(context.Background(), domain.ResolvedCredit{})
	assert.ErrorIs(t, err, domain.ErrCreditSourceMissing)

	_, err = f.credits.Deduct(context.Background(), domain.ResolvedCredit{Source: domain.CreditSourceClassPack})
	assert.ErrorIs(t, err, domain.ErrCreditSourceMissing)
}

func TestCreditEngine_Entitlements(t *testing.T) {
	f := newFixture(t)
	f.addPack("pack-1", "m1", 3)
	f.store.AddCompGrant(&domain.CompClass{ID: "comp-1", StudioID: testStudio, MemberID: "m1", RemainingClasses: 0})

	resp, err := f.credits.Entitlements(context.Background(), testStudio, "m1")
	require.NoError(t, err)
	require.Len(t, resp.Entitlements, 2)

	// priority order, exhausted comp listed but not eligible
	assert.Equal(t, "comp_class", resp.Entitlements[0].Source)
	assert.False(t, resp.Entitlements[0].Eligible)
	assert.Equal(t, "class_pack", resp.Entitlements[1].Source)
	assert.Equal(t, 3, *resp.Entitlements[1].RemainingClasses)

	require.NotNil(t, resp.NextCredit)
	assert.Equal(t, "pack-1", resp.NextCredit.SourceID)

	_, err = f.credits.Entitlements(context.Background(), "", "m1")
	assert.ErrorIs(t, err, domain.ErrInvalidStudioID)
}
