package availability

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"github.com/AureaDrive/AureaDrive/internal/reservation"
	"github.com/AureaDrive/AureaDrive/internal/vehicle"
)

// 内存假实现，并统计每次调用的读取次数（校验批量读取口径）。
type fakeStores struct {
	vehicle          *vehicle.Vehicle
	blocked          []daterange.Day
	reservations     []reservation.Reservation
	blockReads       int
	reservationReads int
}

func (f *fakeStores) FindByID(_ context.Context, id string) (*vehicle.Vehicle, error) {
	return f.vehicle, nil
}

func (f *fakeStores) DaysInRange(_ context.Context, _ string, start, end daterange.Day) ([]daterange.Day, error) {
	f.blockReads++
	var out []daterange.Day
	for _, d := range f.blocked {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStores) FindOverlapping(_ context.Context, _ string, start, end daterange.Day) ([]reservation.Reservation, error) {
	f.reservationReads++
	var out []reservation.Reservation
	for _, r := range f.reservations {
		if r.Status == reservation.StatusCancelled {
			continue
		}
		rs, re, _ := r.Window()
		if daterange.Overlaps(rs, re, start, end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func day(n int) daterange.Day { return daterange.NewDay(2024, time.June, n) }

func newFake() *fakeStores {
	return &fakeStores{
		vehicle: &vehicle.Vehicle{ID: "v-1", Active: true, Listed: true, DailyRateCents: 30000},
	}
}

func TestIsRangeAvailableManualBlock(t *testing.T) {
	f := newFake()
	f.blocked = []daterange.Day{day(2)}
	r := NewResolver(f, f, f)

	ok, reason, err := r.IsRangeAvailable(context.Background(), "v-1", day(1), day(3))
	if err != nil {
		t.Fatalf("IsRangeAvailable: %v", err)
	}
	if ok || reason != ReasonManuallyBlocked {
		t.Fatalf("expected manually_blocked refusal, got ok=%v reason=%s", ok, reason)
	}
}

func TestIsRangeAvailableInactiveVehicle(t *testing.T) {
	f := newFake()
	f.vehicle.Active = false
	r := NewResolver(f, f, f)

	ok, reason, err := r.IsRangeAvailable(context.Background(), "v-1", day(1), day(3))
	if err != nil {
		t.Fatalf("IsRangeAvailable: %v", err)
	}
	if ok || reason != ReasonVehicleInactive {
		t.Fatalf("expected vehicle_inactive refusal, got ok=%v reason=%s", ok, reason)
	}
}

// 封禁日的判定与预订状态无关（I2）：即使同窗预订已取消，封禁日依然不可用。
func TestManualBlockIndependentOfReservations(t *testing.T) {
	f := newFake()
	f.blocked = []daterange.Day{day(2)}
	f.reservations = []reservation.Reservation{{
		ID: "r-1", VehicleID: "v-1", StartDate: "2024-06-01", EndDate: "2024-06-03",
		Status: reservation.StatusCancelled,
	}}
	r := NewResolver(f, f, f)

	ok, reason, err := r.IsRangeAvailable(context.Background(), "v-1", day(1), day(3))
	if err != nil {
		t.Fatalf("IsRangeAvailable: %v", err)
	}
	if ok || reason != ReasonManuallyBlocked {
		t.Fatalf("expected manually_blocked, got ok=%v reason=%s", ok, reason)
	}
}

// 同一天同时被封禁与被预订时，上报 already_reserved。
func TestReservedBeatsBlockedOnSameDay(t *testing.T) {
	f := newFake()
	f.blocked = []daterange.Day{day(2)}
	f.reservations = []reservation.Reservation{{
		ID: "r-1", VehicleID: "v-1", StartDate: "2024-06-02", EndDate: "2024-06-02",
		Status: reservation.StatusConfirmed,
	}}
	r := NewResolver(f, f, f)

	ok, reason, err := r.IsRangeAvailable(context.Background(), "v-1", day(2), day(2))
	if err != nil {
		t.Fatalf("IsRangeAvailable: %v", err)
	}
	if ok || reason != ReasonAlreadyReserved {
		t.Fatalf("expected already_reserved to win the tie, got ok=%v reason=%s", ok, reason)
	}
}

func TestDayMapShape(t *testing.T) {
	f := newFake()
	f.blocked = []daterange.Day{day(2)}
	f.reservations = []reservation.Reservation{{
		ID: "r-1", VehicleID: "v-1", StartDate: "2024-06-04", EndDate: "2024-06-05",
		Status: reservation.StatusProvisional,
	}}
	r := NewResolver(f, f, f)

	m, err := r.DayMap(context.Background(), "v-1", day(1), day(5))
	if err != nil {
		t.Fatalf("DayMap: %v", err)
	}
	if len(m) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(m))
	}
	if !m["2024-06-01"].Available {
		t.Fatalf("expected 06-01 available")
	}
	if m["2024-06-02"].Reason != ReasonManuallyBlocked {
		t.Fatalf("expected 06-02 manually_blocked, got %s", m["2024-06-02"].Reason)
	}
	// provisional 也占用日历
	if m["2024-06-04"].Reason != ReasonAlreadyReserved || m["2024-06-05"].Reason != ReasonAlreadyReserved {
		t.Fatalf("expected 06-04/06-05 already_reserved")
	}
	if m["2024-06-03"].DailyRateCents != 30000 {
		t.Fatalf("expected per-day price carried through")
	}
}

// 一次 DayMap 最多各读一次封禁集合与预订集合（整月日历不许打 O(days) 次库）。
func TestDayMapSingleReadPerStore(t *testing.T) {
	f := newFake()
	r := NewResolver(f, f, f)

	if _, err := r.DayMap(context.Background(), "v-1", day(1), day(30)); err != nil {
		t.Fatalf("DayMap: %v", err)
	}
	if f.blockReads != 1 {
		t.Fatalf("expected exactly 1 block read, got %d", f.blockReads)
	}
	if f.reservationReads != 1 {
		t.Fatalf("expected exactly 1 reservation read, got %d", f.reservationReads)
	}
}

// 无写入时重复调用结果一致。
func TestDayMapIdempotent(t *testing.T) {
	f := newFake()
	f.blocked = []daterange.Day{day(7), day(9)}
	f.reservations = []reservation.Reservation{{
		ID: "r-1", VehicleID: "v-1", StartDate: "2024-06-10", EndDate: "2024-06-12",
		Status: reservation.StatusConfirmed,
	}}
	r := NewResolver(f, f, f)

	m1, err := r.DayMap(context.Background(), "v-1", day(1), day(14))
	if err != nil {
		t.Fatalf("DayMap: %v", err)
	}
	m2, err := r.DayMap(context.Background(), "v-1", day(1), day(14))
	if err != nil {
		t.Fatalf("DayMap: %v", err)
	}
	if !reflect.DeepEqual(m1, m2) {
		t.Fatalf("expected identical maps across calls")
	}
}
