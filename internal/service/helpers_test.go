package service

import (
	"context"
	"testing"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/gateway"
	"github.com/prohmpiriya/studio-booking/internal/repository"
	"github.com/prohmpiriya/studio-booking/pkg/clock"
)

const (
	testStudio = "studio-1"
	testClass  = "class-1"
)

// testNow is five days before the class; the cancellation deadline is
// 2025-03-15 06:00 UTC
var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

var testDeadline = time.Date(2025, 3, 15, 6, 0, 0, 0, time.UTC)

type fixture struct {
	store        *repository.MemoryStore
	clock        *clock.Fixed
	gateway      *gateway.MockGateway
	credits      CreditEngine
	waitlist     WaitlistManager
	admission    AdmissionGate
	cancellation CancellationCoordinator
	coupons      CouponService
	bookings     BookingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	clk := clock.NewFixed(testNow)
	gw := gateway.NewMockGateway()
	bookings := store.Bookings()
	timeout := 2 * time.Second

	credits := NewCreditEngine(store, clk)
	waitlist := NewWaitlistManager(store, store, bookings, store, credits, clk, timeout)
	admission := NewAdmissionGate(store, store, bookings, credits, waitlist, clk, timeout)
	cancellation := NewCancellationCoordinator(store, store, bookings, store, store, credits, waitlist, clk,
		&CancellationConfig{OperationTimeout: timeout})
	coupons := NewCouponService(store, store, store, store, gw, clk, &CouponServiceConfig{OperationTimeout: timeout})
	svc := NewBookingService(BookingServiceDeps{
		Tx:           store,
		Classes:      store,
		Bookings:     bookings,
		Staff:        store,
		Admission:    admission,
		Cancellation: cancellation,
		Waitlist:     waitlist,
		Credits:      credits,
		Clock:        clk,
	}, &BookingServiceConfig{OperationTimeout: timeout})

	return &fixture{
		store:        store,
		clock:        clk,
		gateway:      gw,
		credits:      credits,
		waitlist:     waitlist,
		admission:    admission,
		cancellation: cancellation,
		coupons:      coupons,
		bookings:     svc,
	}
}

func (f *fixture) addClass(capacity int) *domain.ClassInstance {
	class := &domain.ClassInstance{
		ID:                      testClass,
		StudioID:                testStudio,
		Capacity:                capacity,
		Status:                  domain.ClassStatusScheduled,
		StartDate:               "2025-03-15",
		StartTime:               "18:00",
		Timezone:                "UTC",
		CancellationWindowHours: 12,
	}
	f.store.AddClass(class)
	return class
}

func (f *fixture) addUnlimited(memberID string) {
	f.store.AddSubscriptionUnlimited(&domain.SubscriptionUnlimited{
		ID:       "sub-" + memberID,
		StudioID: testStudio,
		MemberID: memberID,
		PlanID:   "plan-unlimited",
		Status:   domain.SubscriptionStatusActive,
	})
}

func (f *fixture) addPack(id, memberID string, remaining int) {
	f.store.AddClassPack(&domain.ClassPack{
		ID:               id,
		StudioID:         testStudio,
		MemberID:         memberID,
		TotalClasses:     10,
		RemainingClasses: remaining,
	})
}

// admit books memberID into the test class and advances the clock so
// waitlist entries get distinct enqueue times
func (f *fixture) admit(t *testing.T, memberID string) *Decision {
	t.Helper()
	d, err := f.admission.Admit(context.Background(), AdmissionRequest{
		StudioID:        testStudio,
		ClassInstanceID: testClass,
		MemberID:        memberID,
		CreatedBy:       memberID,
	})
	if err != nil {
		t.Fatalf("admit %s: %v", memberID, err)
	}
	f.clock.Advance(time.Second)
	return d
}

func (f *fixture) bookedCount(t *testing.T) int {
	t.Helper()
	c, err := f.store.GetByID(context.Background(), testClass)
	if err != nil {
		t.Fatalf("get class: %v", err)
	}
	return c.BookedCount
}

func member(id string) domain.Actor {
	return domain.Actor{ID: id, Role: "member"}
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }
