package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/availability"
	"github.com/AureaDrive/AureaDrive/internal/common/logger"
	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"github.com/AureaDrive/AureaDrive/internal/pricing"
	"github.com/AureaDrive/AureaDrive/internal/reservation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReservationStore 预订存储口径（由 reservation.Repo 实现）。
// CreateIfFree 必须提供存储层互斥：同车同窗的并发写入只允许一个成功，
// 返回 reservation.ErrOverlap / reservation.ErrDuplicateKey 区分两种拒绝。
type ReservationStore interface {
	CreateIfFree(ctx context.Context, res *reservation.Reservation) error
	GetByID(ctx context.Context, id string) (*reservation.Reservation, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*reservation.Reservation, error)
	// UpdateStatus 仅当库中状态仍为 from 时写入，否则返回 reservation.ErrStatusChanged
	UpdateStatus(ctx context.Context, res *reservation.Reservation, from reservation.Status) error
	List(ctx context.Context, vehicleID string, status reservation.Status, offset, limit int) ([]reservation.Reservation, int64, error)
	FindExpiredProvisional(ctx context.Context, now time.Time, limit int) ([]reservation.Reservation, error)
}

// AvailabilityChecker 可用性复核口径（由 availability.Resolver 实现）。
type AvailabilityChecker interface {
	IsRangeAvailable(ctx context.Context, vehicleID string, start, end daterange.Day) (bool, availability.Reason, error)
}

// Options 准入策略参数。
type Options struct {
	MaxRangeDays      int           // 单次预订最大天数
	ProvisionalTTL    time.Duration // provisional 超时时间
	QuoteEpsilonCents int64         // 客户端报价允许偏差（分）
	Now               func() time.Time
}

func (o *Options) fill() {
	if o.MaxRangeDays <= 0 {
		o.MaxRangeDays = 90
	}
	if o.ProvisionalTTL <= 0 {
		o.ProvisionalTTL = 30 * time.Minute
	}
	if o.QuoteEpsilonCents <= 0 {
		o.QuoteEpsilonCents = 100
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service 预订准入（写路径）。
// 引擎只负责判定与落库；真正的扣款由上游拿着 deposit/balance 金额去支付方完成。
type Service struct {
	vehicles availability.VehicleReader
	resolver AvailabilityChecker
	store    ReservationStore
	idem     IdempotencyCache // 可选
	log      logger.Logger
	opts     Options
}

func NewService(vehicles availability.VehicleReader, resolver AvailabilityChecker, store ReservationStore, idem IdempotencyCache, log logger.Logger, opts Options) *Service {
	opts.fill()
	return &Service{
		vehicles: vehicles,
		resolver: resolver,
		store:    store,
		idem:     idem,
		log:      log,
		opts:     opts,
	}
}

// AdmitInput 预订提交入参。
type AdmitInput struct {
	VehicleID string
	Start     daterange.Day
	End       daterange.Day

	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	// ClientSubtotalCents 客户端看到的小计（仅作一致性校验，0 表示未携带）
	ClientSubtotalCents int64

	// IdempotencyKey 同一逻辑预订的重试必须携带同一个键；缺省时服务端生成
	IdempotencyKey string
}

// Admit 预订准入。每一步都是硬前置：
//  1. 区间重校验
//  2. 可用性复核（收窄日历渲染与提交之间的竞态窗口；真正的互斥在存储层）
//  3. 服务端权威复算报价，客户端报价只作偏差校验
//  4. 以 provisional 状态条件写入，价格快照随单冻结
func (s *Service) Admit(ctx context.Context, in AdmitInput) (*reservation.Reservation, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if strings.TrimSpace(in.VehicleID) == "" {
		return nil, fmt.Errorf("%w: vehicle_id required", daterange.ErrInvalidRange)
	}

	now := s.opts.Now()

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	} else if existing := s.lookupExisting(ctx, key); existing != nil {
		// 重试同一逻辑预订：直接返回已创建的记录，不再走准入
		return existing, nil
	}

	today := daterange.DayOf(now)
	if err := daterange.ValidateRange(in.Start, in.End, today, s.opts.MaxRangeDays); err != nil {
		return nil, err
	}

	v, err := s.vehicles.FindByID(ctx, in.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown vehicle %s", daterange.ErrInvalidRange, in.VehicleID)
		}
		return nil, fmt.Errorf("load vehicle: %w", err)
	}

	ok, reason, err := s.resolver.IsRangeAvailable(ctx, in.VehicleID, in.Start, in.End)
	if err != nil {
		return nil, fmt.Errorf("availability recheck: %w", err)
	}
	if !ok {
		return nil, &UnavailableError{Reason: reason}
	}

	quote, err := pricing.ForRange(v, in.Start, in.End)
	if err != nil {
		return nil, err
	}
	if in.ClientSubtotalCents > 0 {
		diff := quote.SubtotalCents - in.ClientSubtotalCents
		if diff < 0 {
			diff = -diff
		}
		if diff > s.opts.QuoteEpsilonCents {
			return nil, fmt.Errorf("%w: server=%d client=%d", ErrQuoteMismatch, quote.SubtotalCents, in.ClientSubtotalCents)
		}
	}

	expiresAt := now.Add(s.opts.ProvisionalTTL)
	res := &reservation.Reservation{
		ID:             uuid.NewString(),
		VehicleID:      in.VehicleID,
		StartDate:      in.Start.String(),
		EndDate:        in.End.String(),
		Status:         reservation.StatusProvisional,
		CustomerName:   strings.TrimSpace(in.CustomerName),
		CustomerEmail:  strings.TrimSpace(in.CustomerEmail),
		CustomerPhone:  strings.TrimSpace(in.CustomerPhone),
		DailyRateCents: quote.DailyRateCents,
		TotalDays:      quote.TotalDays,
		SubtotalCents:  quote.SubtotalCents,
		DepositCents:   quote.DepositCents,
		BalanceCents:   quote.BalanceCents,
		Currency:       quote.Currency,
		IdempotencyKey: key,
		ExpiresAt:      &expiresAt,
	}

	if err := s.store.CreateIfFree(ctx, res); err != nil {
		switch {
		case errors.Is(err, reservation.ErrOverlap):
			// 复核之后、写入之前输掉了竞争
			return nil, &UnavailableError{Reason: availability.ReasonAlreadyReserved}
		case errors.Is(err, reservation.ErrDuplicateKey):
			if existing := s.lookupExisting(ctx, key); existing != nil {
				return existing, nil
			}
			return nil, fmt.Errorf("duplicate idempotency key %s", key)
		default:
			return nil, fmt.Errorf("create reservation: %w", err)
		}
	}

	s.cacheKey(ctx, key, res.ID)
	return res, nil
}

// lookupExisting 按幂等键查找既有预订：先走缓存，miss 或缓存故障落回数据库。
// 任何读失败都按"不存在"处理——唯一索引才是权威，这里只是快路径。
func (s *Service) lookupExisting(ctx context.Context, key string) *reservation.Reservation {
	if s.idem != nil {
		if id, err := s.idem.Get(ctx, key); err == nil && id != "" {
			if res, err := s.store.GetByID(ctx, id); err == nil {
				return res
			}
		}
	}
	res, err := s.store.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil
	}
	return res
}

func (s *Service) cacheKey(ctx context.Context, key, reservationID string) {
	if s.idem == nil {
		return
	}
	if err := s.idem.Put(ctx, key, reservationID, 24*time.Hour); err != nil && s.log != nil {
		s.log.Warnf("idempotency cache put failed key=%s: %v", key, err)
	}
}

// Confirm 支付方回调：定金到账。
func (s *Service) Confirm(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.transition(ctx, id, reservation.StatusConfirmed)
}

// Activate 交车，租期开始。
func (s *Service) Activate(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.transition(ctx, id, reservation.StatusActive)
}

// Complete 还车结算。
func (s *Service) Complete(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.transition(ctx, id, reservation.StatusCompleted)
}

// Cancel 取消预订。取消后对应日期立即释放。
func (s *Service) Cancel(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.transition(ctx, id, reservation.StatusCancelled)
}

// transition 读取-流转-条件写回。写回以读到的状态为前置条件：
// 另一个流转抢先落库时条件更新空手而归，重读最新状态再试，
// 这样迟到的 confirm 不会复活已终态的预订。
func (s *Service) transition(ctx context.Context, id string, to reservation.Status) (*reservation.Reservation, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrReservationNotFound
	}

	for attempt := 0; attempt < 3; attempt++ {
		res, err := s.store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrReservationNotFound
			}
			return nil, fmt.Errorf("load reservation: %w", err)
		}

		from := res.Status
		if err := reservation.ApplyTransition(res, to, s.opts.Now()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		err = s.store.UpdateStatus(ctx, res, from)
		if errors.Is(err, reservation.ErrStatusChanged) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update reservation: %w", err)
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: concurrent status change", ErrInvalidTransition)
}

// ValidateWindow 对外报价前的区间校验，与准入共用同一套规则
// （不许倒序、不许预订过去的日期、不超过最大天数）。
func (s *Service) ValidateWindow(start, end daterange.Day) error {
	return daterange.ValidateRange(start, end, daterange.DayOf(s.opts.Now()), s.opts.MaxRangeDays)
}

// Get 读取单个预订。
func (s *Service) Get(ctx context.Context, id string) (*reservation.Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return res, nil
}

// List 后台列表。
func (s *Service) List(ctx context.Context, vehicleID string, status reservation.Status, offset, limit int) ([]reservation.Reservation, int64, error) {
	return s.store.List(ctx, vehicleID, status, offset, limit)
}

// ExpireStale 把已过期仍未确认的 provisional 预订取消掉，释放日历。
// 由 main 里的定时器周期驱动；返回本轮清理数量。
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("service not initialized")
	}
	now := s.opts.Now()
	stale, err := s.store.FindExpiredProvisional(ctx, now, 200)
	if err != nil {
		return 0, fmt.Errorf("find expired provisional: %w", err)
	}

	cleaned := 0
	for i := range stale {
		res := stale[i]
		if err := reservation.ApplyTransition(&res, reservation.StatusCancelled, now); err != nil {
			continue
		}
		// 条件写回：读取之后该单若已被确认（支付回调先行落库），放过它
		err := s.store.UpdateStatus(ctx, &res, reservation.StatusProvisional)
		if errors.Is(err, reservation.ErrStatusChanged) {
			continue
		}
		if err != nil {
			if s.log != nil {
				s.log.Warnf("expire reservation %s: %v", res.ID, err)
			}
			continue
		}
		cleaned++
	}
	if cleaned > 0 && s.log != nil {
		s.log.Infof("expired %d stale provisional reservations", cleaned)
	}
	return cleaned, nil
}
