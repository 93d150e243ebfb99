package service

import (
	"context"
	"errors"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/dto"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
	"github.com/prohmpiriya/studio-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreditEngine picks and consumes the entitlement that pays for a class
type CreditEngine interface {
	// Resolve previews the credit that would pay for the next class. Read-only.
	Resolve(ctx context.Context, studioID, memberID string) (domain.ResolvedCredit, error)

	// ResolveAndDeduct consumes one credit from the highest priority source.
	// A source spent concurrently is skipped in favour of the next one.
	ResolveAndDeduct(ctx context.Context, studioID, memberID string) (domain.ResolvedCredit, error)

	// Deduct consumes a previously resolved credit
	Deduct(ctx context.Context, credit domain.ResolvedCredit) (domain.ResolvedCredit, error)

	// Refund restores a credit returned by Deduct
	Refund(ctx context.Context, credit domain.ResolvedCredit) error

	// Entitlements lists a member's entitlements and the credit Resolve would pick
	Entitlements(ctx context.Context, studioID, memberID string) (*dto.MemberCreditsResponse, error)
}

type creditEngine struct {
	ledger repository.CreditLedgerRepository
	clock  clock.Clock
}

// NewCreditEngine creates a new CreditEngine
func NewCreditEngine(ledger repository.CreditLedgerRepository, clk clock.Clock) CreditEngine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &creditEngine{ledger: ledger, clock: clk}
}

func (e *creditEngine) Resolve(ctx context.Context, studioID, memberID string) (domain.ResolvedCredit, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.credit.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("studio_id", studioID), attribute.String("member_id", memberID))

	entitlements, err := e.ledger.ListEntitlements(ctx, studioID, memberID)
	if err != nil {
		span.RecordError(err)
		return domain.ResolvedCredit{}, err
	}

	credit, _, err := domain.ResolveCredit(entitlements, e.clock.Now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.ResolvedCredit{}, err
	}
	span.SetAttributes(attribute.String("credit_source", credit.Source.String()))
	return credit, nil
}

func (e *creditEngine) ResolveAndDeduct(ctx context.Context, studioID, memberID string) (domain.ResolvedCredit, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.credit.resolve_and_deduct")
	defer span.End()
	span.SetAttributes(attribute.String("studio_id", studioID), attribute.String("member_id", memberID))

	entitlements, err := e.ledger.ListEntitlements(ctx, studioID, memberID)
	if err != nil {
		span.RecordError(err)
		return domain.ResolvedCredit{}, err
	}

	now := e.clock.Now()
	for _, ent := range domain.SortEntitlements(entitlements) {
		if !ent.Eligible(now) {
			continue
		}
		credit, err := e.ledger.Deduct(ctx, ent.Resolve())
		if errors.Is(err, domain.ErrCreditExhausted) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return domain.ResolvedCredit{}, err
		}
		span.SetAttributes(attribute.String("credit_source", credit.Source.String()))
		return credit, nil
	}

	span.SetStatus(codes.Error, domain.ErrNoCredits.Error())
	return domain.ResolvedCredit{}, domain.ErrNoCredits
}

func (e *creditEngine) Deduct(ctx context.Context, credit domain.ResolvedCredit) (domain.ResolvedCredit, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.credit.deduct")
	defer span.End()

	if !credit.Source.IsValid() || credit.SourceID == "" {
		return domain.ResolvedCredit{}, domain.ErrCreditSourceMissing
	}
	return e.ledger.Deduct(ctx, credit)
}

func (e *creditEngine) Refund(ctx context.Context, credit domain.ResolvedCredit) error {
	ctx, span := telemetry.StartSpan(ctx, "service.credit.refund")
	defer span.End()
	span.SetAttributes(attribute.String("credit_source", credit.Source.String()))

	if !credit.Source.IsValid() || credit.SourceID == "" {
		return domain.ErrCreditSourceMissing
	}
	if err := e.ledger.Refund(ctx, credit); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (e *creditEngine) Entitlements(ctx context.Context, studioID, memberID string) (*dto.MemberCreditsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.credit.entitlements")
	defer span.End()

	if studioID == "" {
		return nil, domain.ErrInvalidStudioID
	}
	if memberID == "" {
		return nil, domain.ErrInvalidMemberID
	}

	entitlements, err := e.ledger.ListEntitlements(ctx, studioID, memberID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := e.clock.Now()
	resp := &dto.MemberCreditsResponse{
		StudioID:     studioID,
		MemberID:     memberID,
		Entitlements: make([]dto.EntitlementResponse, 0, len(entitlements)),
	}
	for _, ent := range domain.SortEntitlements(entitlements) {
		resp.Entitlements = append(resp.Entitlements, dto.FromEntitlement(ent, now))
	}
	if credit, _, err := domain.ResolveCredit(entitlements, now); err == nil {
		resp.NextCredit = &credit
	}
	return resp, nil
}
