package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/availability"
	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"github.com/AureaDrive/AureaDrive/internal/reservation"
	"github.com/AureaDrive/AureaDrive/internal/vehicle"
	"gorm.io/gorm"
)

// memReservationStore 内存实现，镜像存储层契约：
// CreateIfFree 在互斥锁内做"无重叠则插入"，等价于数据库侧的条件写入。
type memReservationStore struct {
	mu   sync.Mutex
	byID map[string]*reservation.Reservation

	// 注入在读取返回之后执行的动作（模拟读与写回之间插进来的并发流转），
	// 触发一次后自动清除
	afterGet         func()
	afterFindExpired func()
}

func newMemReservationStore() *memReservationStore {
	return &memReservationStore{byID: make(map[string]*reservation.Reservation)}
}

func (m *memReservationStore) CreateIfFree(_ context.Context, res *reservation.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byID {
		if existing.IdempotencyKey == res.IdempotencyKey {
			return reservation.ErrDuplicateKey
		}
	}
	for _, existing := range m.byID {
		if existing.VehicleID != res.VehicleID || !existing.Blocking() {
			continue
		}
		if existing.StartDate <= res.EndDate && existing.EndDate >= res.StartDate {
			return reservation.ErrOverlap
		}
	}
	cp := *res
	m.byID[res.ID] = &cp
	return nil
}

func (m *memReservationStore) GetByID(_ context.Context, id string) (*reservation.Reservation, error) {
	m.mu.Lock()
	r, ok := m.byID[id]
	var cp reservation.Reservation
	if ok {
		cp = *r
	}
	m.mu.Unlock()

	if hook := m.afterGet; hook != nil {
		m.afterGet = nil
		hook()
	}
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &cp, nil
}

func (m *memReservationStore) GetByIdempotencyKey(_ context.Context, key string) (*reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memReservationStore) UpdateStatus(_ context.Context, res *reservation.Reservation, from reservation.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[res.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if cur.Status != from {
		return reservation.ErrStatusChanged
	}
	cp := *res
	m.byID[res.ID] = &cp
	return nil
}

func (m *memReservationStore) List(_ context.Context, vehicleID string, status reservation.Status, _, _ int) ([]reservation.Reservation, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reservation.Reservation
	for _, r := range m.byID {
		if vehicleID != "" && r.VehicleID != vehicleID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	return out, int64(len(out)), nil
}

func (m *memReservationStore) FindExpiredProvisional(_ context.Context, now time.Time, _ int) ([]reservation.Reservation, error) {
	m.mu.Lock()
	var out []reservation.Reservation
	for _, r := range m.byID {
		if r.Status == reservation.StatusProvisional && r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			out = append(out, *r)
		}
	}
	m.mu.Unlock()

	if hook := m.afterFindExpired; hook != nil {
		m.afterFindExpired = nil
		hook()
	}
	return out, nil
}

// FindOverlapping 让同一个内存存储充当可用性解析器的预订读取端。
func (m *memReservationStore) FindOverlapping(_ context.Context, vehicleID string, start, end daterange.Day) ([]reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reservation.Reservation
	for _, r := range m.byID {
		if r.VehicleID != vehicleID || !r.Blocking() {
			continue
		}
		if r.StartDate <= end.String() && r.EndDate >= start.String() {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memVehicles struct {
	byID map[string]*vehicle.Vehicle
}

func (m *memVehicles) FindByID(_ context.Context, id string) (*vehicle.Vehicle, error) {
	if v, ok := m.byID[id]; ok {
		return v, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type memBlocks struct {
	days map[string][]daterange.Day // vehicleID -> blocked days
}

func (m *memBlocks) DaysInRange(_ context.Context, vehicleID string, start, end daterange.Day) ([]daterange.Day, error) {
	var out []daterange.Day
	for _, d := range m.days[vehicleID] {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

type fixture struct {
	svc      *Service
	store    *memReservationStore
	vehicles *memVehicles
	blocks   *memBlocks
	resolver *availability.Resolver
	now      time.Time
	nowMu    sync.Mutex
}

func (f *fixture) setNow(t time.Time) {
	f.nowMu.Lock()
	defer f.nowMu.Unlock()
	f.now = t
}

func newFixture() *fixture {
	f := &fixture{
		store: newMemReservationStore(),
		vehicles: &memVehicles{byID: map[string]*vehicle.Vehicle{
			"v-1": {ID: "v-1", Name: "Rolls-Royce Ghost", Active: true, Listed: true, DailyRateCents: 30000, Currency: "USD"},
		}},
		blocks: &memBlocks{days: make(map[string][]daterange.Day)},
		now:    time.Date(2024, time.May, 20, 12, 0, 0, 0, time.UTC),
	}
	f.resolver = availability.NewResolver(f.vehicles, f.blocks, f.store)
	f.svc = NewService(f.vehicles, f.resolver, f.store, nil, nil, Options{
		MaxRangeDays:      90,
		ProvisionalTTL:    30 * time.Minute,
		QuoteEpsilonCents: 100,
		Now: func() time.Time {
			f.nowMu.Lock()
			defer f.nowMu.Unlock()
			return f.now
		},
	})
	return f
}

func d(n int) daterange.Day { return daterange.NewDay(2024, time.June, n) }

func admitInput(key string) AdmitInput {
	return AdmitInput{
		VehicleID:      "v-1",
		Start:          d(1),
		End:            d(3),
		CustomerName:   "A. Client",
		CustomerEmail:  "client@example.com",
		IdempotencyKey: key,
	}
}

func TestAdmitHappyPath(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Admit(context.Background(), admitInput("k-1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.Status != reservation.StatusProvisional {
		t.Fatalf("expected provisional, got %s", res.Status)
	}
	if res.TotalDays != 3 || res.SubtotalCents != 90000 || res.DepositCents != 27000 || res.BalanceCents != 63000 {
		t.Fatalf("snapshot mismatch: %+v", res)
	}
	if res.ExpiresAt == nil || !res.ExpiresAt.After(f.now) {
		t.Fatalf("expected provisional expiry in the future")
	}
}

func TestAdmitThenRangeUnavailableThenCancelFrees(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Admit(ctx, admitInput("k-1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	ok, reason, err := f.resolver.IsRangeAvailable(ctx, "v-1", d(1), d(3))
	if err != nil {
		t.Fatalf("IsRangeAvailable: %v", err)
	}
	if ok || reason != availability.ReasonAlreadyReserved {
		t.Fatalf("expected already_reserved after admit, got ok=%v reason=%s", ok, reason)
	}

	if _, err := f.svc.Cancel(ctx, res.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	ok, _, err = f.resolver.IsRangeAvailable(ctx, "v-1", d(1), d(3))
	if err != nil {
		t.Fatalf("IsRangeAvailable: %v", err)
	}
	if !ok {
		t.Fatalf("expected range free after cancel")
	}
}

func TestAdmitInvalidRange(t *testing.T) {
	f := newFixture()
	in := admitInput("k-1")
	in.Start, in.End = d(5), d(1)
	if _, err := f.svc.Admit(context.Background(), in); !errors.Is(err, daterange.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for inverted range, got %v", err)
	}

	in = admitInput("k-2")
	in.Start, in.End = daterange.NewDay(2024, time.May, 1), daterange.NewDay(2024, time.May, 2)
	if _, err := f.svc.Admit(context.Background(), in); !errors.Is(err, daterange.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for past start, got %v", err)
	}
}

func TestAdmitQuoteMismatch(t *testing.T) {
	f := newFixture()

	in := admitInput("k-1")
	in.ClientSubtotalCents = 50000 // 远低于服务端 90000
	_, err := f.svc.Admit(context.Background(), in)
	if !errors.Is(err, ErrQuoteMismatch) {
		t.Fatalf("expected ErrQuoteMismatch, got %v", err)
	}

	// 偏差在 epsilon 内则接受
	in = admitInput("k-2")
	in.ClientSubtotalCents = 90050
	if _, err := f.svc.Admit(context.Background(), in); err != nil {
		t.Fatalf("expected within-epsilon quote accepted, got %v", err)
	}
}

func TestAdmitManualBlockRefusal(t *testing.T) {
	f := newFixture()
	f.blocks.days["v-1"] = []daterange.Day{d(2)}

	_, err := f.svc.Admit(context.Background(), admitInput("k-1"))
	ue, ok := IsUnavailable(err)
	if !ok || ue.Reason != availability.ReasonManuallyBlocked {
		t.Fatalf("expected manually_blocked refusal, got %v", err)
	}
}

func TestAdmitInactiveVehicle(t *testing.T) {
	f := newFixture()
	f.vehicles.byID["v-1"].Active = false

	_, err := f.svc.Admit(context.Background(), admitInput("k-1"))
	ue, ok := IsUnavailable(err)
	if !ok || ue.Reason != availability.ReasonVehicleInactive {
		t.Fatalf("expected vehicle_inactive refusal, got %v", err)
	}
}

func TestAdmitIdempotentRetry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Admit(ctx, admitInput("k-1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	second, err := f.svc.Admit(ctx, admitInput("k-1"))
	if err != nil {
		t.Fatalf("retry Admit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("retry created a second reservation: %s vs %s", first.ID, second.ID)
	}
	if len(f.store.byID) != 1 {
		t.Fatalf("expected exactly one stored reservation, got %d", len(f.store.byID))
	}
}

// 两个并发提交抢同一区间：恰好一个成功，另一个收到"区间已被占用"。
func TestAdmitConcurrentRace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := admitInput("")
			_, errs[i] = f.svc.Admit(ctx, in)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		ue, ok := IsUnavailable(err)
		if !ok || ue.Reason != availability.ReasonAlreadyReserved {
			t.Fatalf("loser got unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", successes)
	}

	// 落库集合内非取消预订两两不重叠（I1）
	all, _, _ := f.store.List(ctx, "v-1", "", 0, 0)
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if !a.Blocking() || !b.Blocking() {
				continue
			}
			if a.StartDate <= b.EndDate && b.StartDate <= a.EndDate {
				t.Fatalf("stored overlap between %s and %s", a.ID, b.ID)
			}
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Admit(ctx, admitInput("k-1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	if _, err := f.svc.Confirm(ctx, res.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := f.svc.Activate(ctx, res.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if _, err := f.svc.Complete(ctx, res.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, res.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected cancel after complete to fail, got %v", err)
	}
	if _, err := f.svc.Confirm(ctx, "nope"); !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// 清理循环读到过期行之后、写回之前，支付确认先行落库：
// 条件写回必须空手而归，已支付的预订不得被清理成 cancelled。
func TestSweepSkipsConcurrentlyConfirmed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Admit(ctx, admitInput("k-1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	f.setNow(f.now.Add(31 * time.Minute))
	f.store.afterFindExpired = func() {
		if _, err := f.svc.Confirm(ctx, res.ID); err != nil {
			t.Fatalf("Confirm: %v", err)
		}
	}

	cleaned, err := f.svc.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if cleaned != 0 {
		t.Fatalf("sweep must lose the race to the payment callback, cleaned %d", cleaned)
	}

	got, err := f.svc.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != reservation.StatusConfirmed {
		t.Fatalf("paid reservation clobbered by sweep: status=%s (want confirmed)", got.Status)
	}
}

// 两个并发回调交错：取消先行落库后，迟到的 confirm 不得复活终态预订。
func TestTransitionLosesRaceToCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Admit(ctx, admitInput("k-1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	f.store.afterGet = func() {
		if _, err := f.svc.Cancel(ctx, res.ID); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
	}

	if _, err := f.svc.Confirm(ctx, res.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected confirm to lose the race, got %v", err)
	}

	got, err := f.svc.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != reservation.StatusCancelled {
		t.Fatalf("stale confirm resurrected a cancelled reservation: status=%s", got.Status)
	}
}

// 报价入口与准入共用一套区间规则。
func TestValidateWindowMatchesAdmissionRules(t *testing.T) {
	f := newFixture()

	if err := f.svc.ValidateWindow(d(1), d(3)); err != nil {
		t.Fatalf("valid window rejected: %v", err)
	}
	if err := f.svc.ValidateWindow(daterange.NewDay(2024, time.May, 1), daterange.NewDay(2024, time.May, 2)); !errors.Is(err, daterange.ErrInvalidRange) {
		t.Fatalf("expected past start rejected, got %v", err)
	}
	if err := f.svc.ValidateWindow(d(1), d(1).AddDays(120)); !errors.Is(err, daterange.ErrInvalidRange) {
		t.Fatalf("expected over-length range rejected, got %v", err)
	}
	if err := f.svc.ValidateWindow(d(5), d(1)); !errors.Is(err, daterange.ErrInvalidRange) {
		t.Fatalf("expected inverted range rejected, got %v", err)
	}
}

func TestExpireStaleFreesCalendar(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Admit(ctx, admitInput("k-1"))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	// 未超时：不清理
	cleaned, err := f.svc.ExpireStale(ctx)
	if err != nil || cleaned != 0 {
		t.Fatalf("expected no cleanup yet, got n=%d err=%v", cleaned, err)
	}

	f.setNow(f.now.Add(31 * time.Minute))
	cleaned, err = f.svc.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if cleaned != 1 {
		t.Fatalf("expected 1 cleaned, got %d", cleaned)
	}

	got, err := f.svc.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != reservation.StatusCancelled {
		t.Fatalf("expected cancelled after expiry, got %s", got.Status)
	}

	ok, _, err := f.resolver.IsRangeAvailable(ctx, "v-1", d(1), d(3))
	if err != nil || !ok {
		t.Fatalf("expected range free after expiry, ok=%v err=%v", ok, err)
	}

	// 已确认的预订不受 TTL 影响
	res2, err := f.svc.Admit(ctx, AdmitInput{VehicleID: "v-1", Start: d(10), End: d(12), IdempotencyKey: "k-2"})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, res2.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	f.setNow(f.now.Add(2 * time.Hour))
	if n, _ := f.svc.ExpireStale(ctx); n != 0 {
		t.Fatalf("confirmed reservation must not expire, cleaned %d", n)
	}
}
