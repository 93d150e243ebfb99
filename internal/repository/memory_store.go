package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/pkg/retry"
)

var errInjectedConflict = errors.New("could not serialize access due to concurrent update")

type memTxKey struct{}

// memTx tracks what one MemoryStore transaction holds: class locks, claimed
// outbox rows and the undo log replayed on rollback
type memTx struct {
	lockedClasses map[string]*sync.Mutex
	lockOrder     []string
	claimed       []string
	undo          []func()
}

// MemoryStore is an in-process implementation of every repository port.
// Class instances are locked per id for the life of a transaction and failed
// transactions are rolled back from an undo log.
type MemoryStore struct {
	mu         sync.Mutex
	classLocks map[string]*sync.Mutex

	classes     map[string]*domain.ClassInstance
	bookings    map[string]*domain.Booking
	comps       map[string]*domain.CompClass
	unlimited   map[string]*domain.SubscriptionUnlimited
	limited     map[string]*domain.SubscriptionLimited
	packs       map[string]*domain.ClassPack
	coupons     map[string]*domain.Coupon
	redemptions []*domain.CouponRedemption
	staff       map[string]map[string]bool
	outbox      []*domain.OutboxMessage
	claimed     map[string]bool

	injectedConflicts int
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		classLocks: make(map[string]*sync.Mutex),
		classes:    make(map[string]*domain.ClassInstance),
		bookings:   make(map[string]*domain.Booking),
		comps:      make(map[string]*domain.CompClass),
		unlimited:  make(map[string]*domain.SubscriptionUnlimited),
		limited:    make(map[string]*domain.SubscriptionLimited),
		packs:      make(map[string]*domain.ClassPack),
		coupons:    make(map[string]*domain.Coupon),
		staff:      make(map[string]map[string]bool),
		claimed:    make(map[string]bool),
	}
}

// InjectConflicts makes the next n top-level transactions fail with a
// retryable serialization error before running
func (s *MemoryStore) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injectedConflicts = n
}

// WithTx runs fn as one unit of work; any error rolls back its writes
func (s *MemoryStore) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	if s.injectedConflicts > 0 {
		s.injectedConflicts--
		s.mu.Unlock()
		return retry.Retryable(errInjectedConflict)
	}
	s.mu.Unlock()

	tx := &memTx{lockedClasses: make(map[string]*sync.Mutex)}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))

	s.mu.Lock()
	if err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
	}
	for _, id := range tx.claimed {
		delete(s.claimed, id)
	}
	s.mu.Unlock()

	for i := len(tx.lockOrder) - 1; i >= 0; i-- {
		tx.lockedClasses[tx.lockOrder[i]].Unlock()
	}
	return err
}

// onRollback registers an undo step; callers hold s.mu
func (s *MemoryStore) onRollback(ctx context.Context, fn func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, fn)
	}
}

// ---- seeding and inspection ----

// AddClass stores a class instance
func (s *MemoryStore) AddClass(class *domain.ClassInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *class
	s.classes[c.ID] = &c
}

// AddCompGrant stores a comp class grant
func (s *MemoryStore) AddCompGrant(grant *domain.CompClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := *grant
	s.comps[g.ID] = &g
}

// AddSubscriptionUnlimited stores an unlimited subscription
func (s *MemoryStore) AddSubscriptionUnlimited(sub *domain.SubscriptionUnlimited) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *sub
	s.unlimited[v.ID] = &v
}

// AddSubscriptionLimited stores a limited subscription
func (s *MemoryStore) AddSubscriptionLimited(sub *domain.SubscriptionLimited) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *sub
	s.limited[v.ID] = &v
}

// AddClassPack stores a class pack
func (s *MemoryStore) AddClassPack(pack *domain.ClassPack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *pack
	s.packs[p.ID] = &p
}

// AddCoupon stores a coupon
func (s *MemoryStore) AddCoupon(coupon *domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *coupon
	c.PlanIDs = append([]string(nil), coupon.PlanIDs...)
	s.coupons[c.ID] = &c
}

// AddStaff registers memberID as staff of studioID
func (s *MemoryStore) AddStaff(studioID, memberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staff[studioID] == nil {
		s.staff[studioID] = make(map[string]bool)
	}
	s.staff[studioID][memberID] = true
}

// CompGrant returns a copy of a comp grant
func (s *MemoryStore) CompGrant(id string) (*domain.CompClass, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.comps[id]
	if !ok {
		return nil, false
	}
	c := *g
	return &c, true
}

// ClassPack returns a copy of a class pack
func (s *MemoryStore) ClassPack(id string) (*domain.ClassPack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packs[id]
	if !ok {
		return nil, false
	}
	c := *p
	return &c, true
}

// SubscriptionLimited returns a copy of a limited subscription
func (s *MemoryStore) SubscriptionLimited(id string) (*domain.SubscriptionLimited, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.limited[id]
	if !ok {
		return nil, false
	}
	c := *v
	return &c, true
}

// Coupon returns a copy of a coupon by id
func (s *MemoryStore) Coupon(id string) (*domain.Coupon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.coupons[id]
	if !ok {
		return nil, false
	}
	c := *v
	return &c, true
}

// Redemptions returns all redemption records
func (s *MemoryStore) Redemptions() []*domain.CouponRedemption {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.CouponRedemption, len(s.redemptions))
	copy(out, s.redemptions)
	return out
}

// OutboxMessages returns copies of all outbox messages in insertion order
func (s *MemoryStore) OutboxMessages() []*domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		c := *m
		out = append(out, &c)
	}
	return out
}

// BookingsForClass returns copies of all bookings of a class
func (s *MemoryStore) BookingsForClass(classInstanceID string) []*domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Booking
	for _, b := range s.bookings {
		if b.ClassInstanceID == classInstanceID {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- ClassInstanceRepository ----

// GetByID retrieves a class instance without locking it
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*domain.ClassInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return nil, domain.ErrClassNotFound
	}
	cp := *c
	return &cp, nil
}

// GetForUpdate takes the per-class lock for the rest of the transaction
func (s *MemoryStore) GetForUpdate(ctx context.Context, id string) (*domain.ClassInstance, error) {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	if !ok {
		return nil, errNoTransaction
	}

	if _, held := tx.lockedClasses[id]; !held {
		s.mu.Lock()
		if _, exists := s.classes[id]; !exists {
			s.mu.Unlock()
			return nil, domain.ErrClassNotFound
		}
		lock, ok := s.classLocks[id]
		if !ok {
			lock = &sync.Mutex{}
			s.classLocks[id] = lock
		}
		s.mu.Unlock()

		lock.Lock()
		tx.lockedClasses[id] = lock
		tx.lockOrder = append(tx.lockOrder, id)
	}

	return s.GetByID(ctx, id)
}

// AdjustBookedCount changes the booked count within [0, capacity]
func (s *MemoryStore) AdjustBookedCount(ctx context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return domain.ErrClassNotFound
	}
	next := c.BookedCount + delta
	if next > c.Capacity || next < 0 {
		return domain.ErrCapacityExceeded
	}
	prev := c.BookedCount
	c.BookedCount = next
	s.onRollback(ctx, func() { c.BookedCount = prev })
	return nil
}

// ListWaitlistExpired lists classes whose waitlist can no longer be promoted
func (s *MemoryStore) ListWaitlistExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ClassInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiting := make(map[string]bool)
	for _, b := range s.bookings {
		if b.IsWaitlisted() {
			waiting[b.ClassInstanceID] = true
		}
	}

	var out []*domain.ClassInstance
	for id := range waiting {
		c, ok := s.classes[id]
		if !ok {
			continue
		}
		started, err := c.HasStarted(now)
		if err != nil {
			continue
		}
		if c.Status != domain.ClassStatusScheduled || started {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- BookingRepository ----

// Bookings exposes the store as a BookingRepository. Class and booking
// repositories both have GetByID, so they are separate views.
func (s *MemoryStore) Bookings() BookingRepository {
	return &memoryBookings{s: s}
}

type memoryBookings struct {
	s *MemoryStore
}

func (r *memoryBookings) Create(ctx context.Context, booking *domain.Booking) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}
	for _, b := range s.bookings {
		if b.ClassInstanceID == booking.ClassInstanceID && b.MemberID == booking.MemberID && b.IsActive() {
			return domain.ErrAlreadyBooked
		}
	}
	b := *booking
	b.WaitlistPosition = nil
	s.bookings[b.ID] = &b
	s.onRollback(ctx, func() { delete(s.bookings, b.ID) })
	return nil
}

func (r *memoryBookings) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memoryBookings) GetActiveByMember(ctx context.Context, classInstanceID, memberID string) (*domain.Booking, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.ClassInstanceID == classInstanceID && b.MemberID == memberID && b.IsActive() {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrBookingNotFound
}

func (r *memoryBookings) Update(ctx context.Context, booking *domain.Booking) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.bookings[booking.ID]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b := *booking
	b.WaitlistPosition = nil
	s.bookings[b.ID] = &b
	s.onRollback(ctx, func() { s.bookings[prev.ID] = prev })
	return nil
}

func (r *memoryBookings) ListWaitlisted(ctx context.Context, classInstanceID string) ([]*domain.Booking, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitlistedLocked(classInstanceID), nil
}

func (r *memoryBookings) WaitlistPosition(ctx context.Context, booking *domain.Booking) (int, error) {
	if !booking.IsWaitlisted() || booking.WaitlistedAt == nil {
		return 0, nil
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	position := 1
	for _, b := range s.waitlistedLocked(booking.ClassInstanceID) {
		if waitlistBefore(b, booking) {
			position++
		}
	}
	return position, nil
}

func (r *memoryBookings) CountByStatus(ctx context.Context, classInstanceID string, status domain.BookingStatus) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, b := range s.bookings {
		if b.ClassInstanceID == classInstanceID && b.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) waitlistedLocked(classInstanceID string) []*domain.Booking {
	var out []*domain.Booking
	for _, b := range s.bookings {
		if b.ClassInstanceID == classInstanceID && b.IsWaitlisted() {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return waitlistBefore(out[i], out[j]) })
	return out
}

func waitlistBefore(a, b *domain.Booking) bool {
	if a.WaitlistedAt == nil || b.WaitlistedAt == nil {
		return a.ID < b.ID
	}
	if !a.WaitlistedAt.Equal(*b.WaitlistedAt) {
		return a.WaitlistedAt.Before(*b.WaitlistedAt)
	}
	return a.ID < b.ID
}

// ---- CreditLedgerRepository ----

// ListEntitlements returns copies of the member's entitlements
func (s *MemoryStore) ListEntitlements(ctx context.Context, studioID, memberID string) ([]domain.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Entitlement
	for _, c := range s.comps {
		if c.StudioID == studioID && c.MemberID == memberID {
			cp := *c
			out = append(out, &cp)
		}
	}
	for _, u := range s.unlimited {
		if u.StudioID == studioID && u.MemberID == memberID {
			cp := *u
			out = append(out, &cp)
		}
	}
	for _, l := range s.limited {
		if l.StudioID == studioID && l.MemberID == memberID {
			cp := *l
			out = append(out, &cp)
		}
	}
	for _, p := range s.packs {
		if p.StudioID == studioID && p.MemberID == memberID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Deduct applies the variant's deduction to the stored entitlement
func (s *MemoryStore) Deduct(ctx context.Context, credit domain.ResolvedCredit) (domain.ResolvedCredit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch credit.Source {
	case domain.CreditSourceCompClass:
		c, ok := s.comps[credit.SourceID]
		if !ok {
			return domain.ResolvedCredit{}, domain.ErrCreditExhausted
		}
		prev := c.RemainingClasses
		out, err := c.Deduct()
		if err == nil {
			s.onRollback(ctx, func() { c.RemainingClasses = prev })
		}
		return out, err
	case domain.CreditSourceClassPack:
		p, ok := s.packs[credit.SourceID]
		if !ok {
			return domain.ResolvedCredit{}, domain.ErrCreditExhausted
		}
		prev := p.RemainingClasses
		out, err := p.Deduct()
		if err == nil {
			s.onRollback(ctx, func() { p.RemainingClasses = prev })
		}
		return out, err
	case domain.CreditSourceSubscriptionLimited:
		l, ok := s.limited[credit.SourceID]
		if !ok || l.Status != domain.SubscriptionStatusActive {
			return domain.ResolvedCredit{}, domain.ErrCreditExhausted
		}
		prev := l.ClassesUsedThisPeriod
		out, err := l.Deduct()
		if err == nil {
			s.onRollback(ctx, func() { l.ClassesUsedThisPeriod = prev })
		}
		return out, err
	case domain.CreditSourceSubscriptionUnlimited:
		return domain.ResolvedCredit{Source: credit.Source, SourceID: credit.SourceID}, nil
	}
	return domain.ResolvedCredit{}, fmt.Errorf("unknown credit source %q", credit.Source)
}

// Refund applies the variant's refund to the stored entitlement
func (s *MemoryStore) Refund(ctx context.Context, credit domain.ResolvedCredit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch credit.Source {
	case domain.CreditSourceCompClass:
		c, ok := s.comps[credit.SourceID]
		if !ok {
			return fmt.Errorf("comp grant %s not found", credit.SourceID)
		}
		prev := c.RemainingClasses
		s.onRollback(ctx, func() { c.RemainingClasses = prev })
		return c.Refund(credit)
	case domain.CreditSourceClassPack:
		p, ok := s.packs[credit.SourceID]
		if !ok {
			return fmt.Errorf("class pack %s not found", credit.SourceID)
		}
		prev := p.RemainingClasses
		s.onRollback(ctx, func() { p.RemainingClasses = prev })
		return p.Refund(credit)
	case domain.CreditSourceSubscriptionLimited:
		l, ok := s.limited[credit.SourceID]
		if !ok {
			return fmt.Errorf("subscription %s not found", credit.SourceID)
		}
		prev := l.ClassesUsedThisPeriod
		s.onRollback(ctx, func() { l.ClassesUsedThisPeriod = prev })
		return l.Refund(credit)
	case domain.CreditSourceSubscriptionUnlimited:
		return nil
	}
	return fmt.Errorf("unknown credit source %q", credit.Source)
}

// CreateCompGrant stores a new comp grant
func (s *MemoryStore) CreateCompGrant(ctx context.Context, grant *domain.CompClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.comps[grant.ID]; exists {
		return fmt.Errorf("comp grant %s already exists", grant.ID)
	}
	g := *grant
	s.comps[g.ID] = &g
	s.onRollback(ctx, func() { delete(s.comps, g.ID) })
	return nil
}

// CountSubscriptions counts a member's subscriptions at a studio
func (s *MemoryStore) CountSubscriptions(ctx context.Context, studioID, memberID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, u := range s.unlimited {
		if u.StudioID == studioID && u.MemberID == memberID {
			count++
		}
	}
	for _, l := range s.limited {
		if l.StudioID == studioID && l.MemberID == memberID {
			count++
		}
	}
	return count, nil
}

// ---- CouponRepository ----

// GetByCode retrieves a coupon by studio and code
func (s *MemoryStore) GetByCode(ctx context.Context, studioID, code string) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coupons {
		if c.StudioID == studioID && c.Code == code {
			cp := *c
			cp.PlanIDs = append([]string(nil), c.PlanIDs...)
			return &cp, nil
		}
	}
	return nil, domain.ErrCouponNotFound
}

// IncrementRedemptions compares against the cap and increments under the store lock
func (s *MemoryStore) IncrementRedemptions(ctx context.Context, couponID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[couponID]
	if !ok {
		return 0, domain.ErrCouponNotFound
	}
	if c.LimitReached() {
		return 0, &domain.CouponInvalidError{Reason: domain.CouponReasonLimitReached}
	}
	c.CurrentRedemptions++
	s.onRollback(ctx, func() { c.CurrentRedemptions-- })
	return c.CurrentRedemptions, nil
}

// CreateRedemption appends a redemption record
func (s *MemoryStore) CreateRedemption(ctx context.Context, redemption *domain.CouponRedemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *redemption
	s.redemptions = append(s.redemptions, &r)
	s.onRollback(ctx, func() {
		for i, existing := range s.redemptions {
			if existing.ID == r.ID {
				s.redemptions = append(s.redemptions[:i], s.redemptions[i+1:]...)
				return
			}
		}
	})
	return nil
}

// AttachDiscountHandle sets the handle on a redemption that has none yet
func (s *MemoryStore) AttachDiscountHandle(ctx context.Context, redemptionID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.redemptions {
		if r.ID == redemptionID && r.DiscountHandle == "" {
			r.DiscountHandle = handle
			s.onRollback(ctx, func() { r.DiscountHandle = "" })
			return nil
		}
	}
	return fmt.Errorf("redemption %s is not pending", redemptionID)
}

// ReleaseRedemption removes a pending redemption and decrements its coupon counter
func (s *MemoryStore) ReleaseRedemption(ctx context.Context, redemption *domain.CouponRedemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.redemptions {
		if r.ID != redemption.ID || r.DiscountHandle != "" {
			continue
		}
		s.redemptions = append(s.redemptions[:i], s.redemptions[i+1:]...)
		removed := r
		s.onRollback(ctx, func() { s.redemptions = append(s.redemptions, removed) })
		if c, ok := s.coupons[r.CouponID]; ok && c.CurrentRedemptions > 0 {
			c.CurrentRedemptions--
			s.onRollback(ctx, func() { c.CurrentRedemptions++ })
		}
		return nil
	}
	return nil
}

// ---- StaffRepository ----

// IsStaff reports whether memberID is staff at studioID
func (s *MemoryStore) IsStaff(ctx context.Context, studioID, memberID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staff[studioID][memberID], nil
}

// ---- OutboxRepository ----

// Create appends an outbox message
func (s *MemoryStore) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *msg
	s.outbox = append(s.outbox, &m)
	s.onRollback(ctx, func() {
		for i, existing := range s.outbox {
			if existing.ID == m.ID {
				s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
				return
			}
		}
	})
	return nil
}

// FetchPending claims pending messages not claimed by another transaction
func (s *MemoryStore) FetchPending(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	tx, inTx := ctx.Value(memTxKey{}).(*memTx)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.OutboxMessage
	for _, m := range s.outbox {
		if limit > 0 && len(out) >= limit {
			break
		}
		if m.Status != domain.OutboxStatusPending || s.claimed[m.ID] {
			continue
		}
		if inTx {
			s.claimed[m.ID] = true
			tx.claimed = append(tx.claimed, m.ID)
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// MarkAsPublished marks a message as published
func (s *MemoryStore) MarkAsPublished(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findOutboxLocked(id)
	if m == nil {
		return errOutboxMessageNotFound
	}
	prev := *m
	m.MarkAsPublished(at)
	s.onRollback(ctx, func() { *m = prev })
	return nil
}

// MarkAsFailed records a failed publish attempt
func (s *MemoryStore) MarkAsFailed(ctx context.Context, id string, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findOutboxLocked(id)
	if m == nil {
		return errOutboxMessageNotFound
	}
	prev := *m
	m.MarkAsFailed(errMsg, at)
	s.onRollback(ctx, func() { *m = prev })
	return nil
}

// DeletePublished drops published messages older than cutoff
func (s *MemoryStore) DeletePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.outbox[:0]
	var deleted int64
	for _, m := range s.outbox {
		if m.Status == domain.OutboxStatusPublished && m.PublishedAt != nil && m.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.outbox = kept
	return deleted, nil
}

func (s *MemoryStore) findOutboxLocked(id string) *domain.OutboxMessage {
	for _, m := range s.outbox {
		if m.ID == id {
			return m
		}
	}
	return nil
}

var (
	_ Transactor              = (*MemoryStore)(nil)
	_ ClassInstanceRepository = (*MemoryStore)(nil)
	_ CreditLedgerRepository  = (*MemoryStore)(nil)
	_ CouponRepository        = (*MemoryStore)(nil)
	_ StaffRepository         = (*MemoryStore)(nil)
	_ OutboxRepository        = (*MemoryStore)(nil)
	_ BookingRepository       = (*memoryBookings)(nil)
)
