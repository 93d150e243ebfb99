package domain

import (
	"sort"
	"time"
)

// CreditSource identifies which entitlement variant paid for a booking
type CreditSource string

const (
	CreditSourceCompClass             CreditSource = "comp_class"
	CreditSourceSubscriptionUnlimited CreditSource = "subscription_unlimited"
	CreditSourceSubscriptionLimited   CreditSource = "subscription_limited"
	CreditSourceClassPack             CreditSource = "class_pack"
)

// IsValid checks if the source is a known CreditSource
func (s CreditSource) IsValid() bool {
	switch s {
	case CreditSourceCompClass, CreditSourceSubscriptionUnlimited,
		CreditSourceSubscriptionLimited, CreditSourceClassPack:
		return true
	}
	return false
}

// String returns the string representation of CreditSource
func (s CreditSource) String() string {
	return string(s)
}

// Priority is the resolution rank of the source; lower wins
func (s CreditSource) Priority() int {
	switch s {
	case CreditSourceCompClass:
		return 1
	case CreditSourceSubscriptionUnlimited:
		return 2
	case CreditSourceSubscriptionLimited:
		return 3
	case CreditSourceClassPack:
		return 4
	}
	return 99
}

// SubscriptionStatus is the billing status of a member subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// ResolvedCredit is the entitlement chosen to pay for one class.
// RemainingAfter is the countable balance once the credit is consumed; nil when nothing is counted.
type ResolvedCredit struct {
	Source         CreditSource `json:"source"`
	SourceID       string       `json:"source_id"`
	RemainingAfter *int         `json:"remaining_after,omitempty"`
}

// Remaining returns RemainingAfter when it is tracked
func (r ResolvedCredit) Remaining() (int, bool) {
	if r.RemainingAfter == nil {
		return 0, false
	}
	return *r.RemainingAfter, true
}

// Entitlement is the closed set of credit variants a member can hold.
// Deduct and Refund mutate the in-memory value; persistent stores apply the
// same rules with conditional updates.
type Entitlement interface {
	Source() CreditSource
	SourceID() string
	Expiry() *time.Time
	// Eligible reports whether at least one credit can be consumed at now.
	Eligible(now time.Time) bool
	// Resolve previews the credit without consuming it.
	Resolve() ResolvedCredit
	Deduct() (ResolvedCredit, error)
	Refund(credit ResolvedCredit) error
	entitlement()
}

// CompClass is a staff or coupon granted free class credit
type CompClass struct {
	ID                 string     `json:"id"`
	StudioID           string     `json:"studio_id"`
	MemberID           string     `json:"member_id"`
	RemainingClasses   int        `json:"remaining_classes"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	Reason             string     `json:"reason,omitempty"`
	CouponRedemptionID string     `json:"coupon_redemption_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func (c *CompClass) entitlement()         {}
func (c *CompClass) Source() CreditSource { return CreditSourceCompClass }
func (c *CompClass) SourceID() string     { return c.ID }
func (c *CompClass) Expiry() *time.Time   { return c.ExpiresAt }

func (c *CompClass) Eligible(now time.Time) bool {
	return c.RemainingClasses > 0 && notExpired(c.ExpiresAt, now)
}

func (c *CompClass) Resolve() ResolvedCredit {
	return countedCredit(c.Source(), c.ID, c.RemainingClasses-1)
}

func (c *CompClass) Deduct() (ResolvedCredit, error) {
	if err := deductCounted(&c.RemainingClasses); err != nil {
		return ResolvedCredit{}, err
	}
	return countedCredit(c.Source(), c.ID, c.RemainingClasses), nil
}

func (c *CompClass) Refund(ResolvedCredit) error {
	c.RemainingClasses++
	return nil
}

// SubscriptionUnlimited is an active plan without a per-period class limit
type SubscriptionUnlimited struct {
	ID       string             `json:"id"`
	StudioID string             `json:"studio_id"`
	MemberID string             `json:"member_id"`
	PlanID   string             `json:"plan_id,omitempty"`
	Status   SubscriptionStatus `json:"status"`
}

func (s *SubscriptionUnlimited) entitlement()         {}
func (s *SubscriptionUnlimited) Source() CreditSource { return CreditSourceSubscriptionUnlimited }
func (s *SubscriptionUnlimited) SourceID() string     { return s.ID }
func (s *SubscriptionUnlimited) Expiry() *time.Time   { return nil }

func (s *SubscriptionUnlimited) Eligible(time.Time) bool {
	return s.Status == SubscriptionStatusActive
}

func (s *SubscriptionUnlimited) Resolve() ResolvedCredit {
	return ResolvedCredit{Source: s.Source(), SourceID: s.ID}
}

func (s *SubscriptionUnlimited) Deduct() (ResolvedCredit, error) {
	return s.Resolve(), nil
}

func (s *SubscriptionUnlimited) Refund(ResolvedCredit) error {
	return nil
}

// SubscriptionLimited is an active plan capped at ClassLimit classes per billing period.
// ClassesUsedThisPeriod is reset by billing at each period boundary.
type SubscriptionLimited struct {
	ID                    string             `json:"id"`
	StudioID              string             `json:"studio_id"`
	MemberID              string             `json:"member_id"`
	PlanID                string             `json:"plan_id,omitempty"`
	Status                SubscriptionStatus `json:"status"`
	ClassLimit            int                `json:"class_limit"`
	ClassesUsedThisPeriod int                `json:"classes_used_this_period"`
}

func (s *SubscriptionLimited) entitlement()         {}
func (s *SubscriptionLimited) Source() CreditSource { return CreditSourceSubscriptionLimited }
func (s *SubscriptionLimited) SourceID() string     { return s.ID }
func (s *SubscriptionLimited) Expiry() *time.Time   { return nil }

func (s *SubscriptionLimited) Eligible(time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.ClassesUsedThisPeriod < s.ClassLimit
}

func (s *SubscriptionLimited) Resolve() ResolvedCredit {
	return countedCredit(s.Source(), s.ID, s.ClassLimit-s.ClassesUsedThisPeriod-1)
}

func (s *SubscriptionLimited) Deduct() (ResolvedCredit, error) {
	if s.ClassesUsedThisPeriod >= s.ClassLimit {
		return ResolvedCredit{}, ErrCreditExhausted
	}
	s.ClassesUsedThisPeriod++
	return countedCredit(s.Source(), s.ID, s.ClassLimit-s.ClassesUsedThisPeriod), nil
}

// Refund gives back the one class recorded in the credit. Usage never drops
// below zero, so a refund landing after a period reset is absorbed.
func (s *SubscriptionLimited) Refund(ResolvedCredit) error {
	if s.ClassesUsedThisPeriod > 0 {
		s.ClassesUsedThisPeriod--
	}
	return nil
}

// ClassPack is a prepaid bundle of class credits
type ClassPack struct {
	ID               string     `json:"id"`
	StudioID         string     `json:"studio_id"`
	MemberID         string     `json:"member_id"`
	TotalClasses     int        `json:"total_classes"`
	RemainingClasses int        `json:"remaining_classes"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (p *ClassPack) entitlement()         {}
func (p *ClassPack) Source() CreditSource { return CreditSourceClassPack }
func (p *ClassPack) SourceID() string     { return p.ID }
func (p *ClassPack) Expiry() *time.Time   { return p.ExpiresAt }

func (p *ClassPack) Eligible(now time.Time) bool {
	return p.RemainingClasses > 0 && notExpired(p.ExpiresAt, now)
}

func (p *ClassPack) Resolve() ResolvedCredit {
	return countedCredit(p.Source(), p.ID, p.RemainingClasses-1)
}

func (p *ClassPack) Deduct() (ResolvedCredit, error) {
	if err := deductCounted(&p.RemainingClasses); err != nil {
		return ResolvedCredit{}, err
	}
	return countedCredit(p.Source(), p.ID, p.RemainingClasses), nil
}

// Refund returns exactly one credit; deductions by other live bookings stay spent.
func (p *ClassPack) Refund(ResolvedCredit) error {
	p.RemainingClasses++
	return nil
}

// ResolveCredit picks the entitlement that pays for the next class.
// Order: comp class, unlimited subscription, limited subscription, class pack.
// Within a source the soonest expiry wins and entries without expiry go last.
func ResolveCredit(entitlements []Entitlement, now time.Time) (ResolvedCredit, Entitlement, error) {
	ordered := SortEntitlements(entitlements)
	for _, e := range ordered {
		if e.Eligible(now) {
			return e.Resolve(), e, nil
		}
	}
	return ResolvedCredit{}, nil, ErrNoCredits
}

// SortEntitlements returns a copy ordered by resolution priority
func SortEntitlements(entitlements []Entitlement) []Entitlement {
	ordered := make([]Entitlement, 0, len(entitlements))
	for _, e := range entitlements {
		if e != nil {
			ordered = append(ordered, e)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if pa, pb := a.Source().Priority(), b.Source().Priority(); pa != pb {
			return pa < pb
		}
		ea, eb := a.Expiry(), b.Expiry()
		switch {
		case ea != nil && eb != nil && !ea.Equal(*eb):
			return ea.Before(*eb)
		case ea != nil && eb == nil:
			return true
		case ea == nil && eb != nil:
			return false
		}
		return a.SourceID() < b.SourceID()
	})
	return ordered
}

// FindEntitlement returns the entitlement matching a resolved credit
func FindEntitlement(entitlements []Entitlement, credit ResolvedCredit) (Entitlement, bool) {
	for _, e := range entitlements {
		if e != nil && e.Source() == credit.Source && e.SourceID() == credit.SourceID {
			return e, true
		}
	}
	return nil, false
}

func notExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || expiresAt.After(now)
}

func countedCredit(source CreditSource, id string, remainingAfter int) ResolvedCredit {
	return ResolvedCredit{Source: source, SourceID: id, RemainingAfter: &remainingAfter}
}

func deductCounted(remaining *int) error {
	if *remaining <= 0 {
		return ErrCreditExhausted
	}
	*remaining--
	return nil
}
