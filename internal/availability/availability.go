package availability

import (
	"context"
	"fmt"

	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"github.com/AureaDrive/AureaDrive/internal/reservation"
	"github.com/AureaDrive/AureaDrive/internal/vehicle"
)

// Reason 不可用原因码。只用于前端文案，不携带敏感细节。
type Reason string

const (
	ReasonVehicleInactive Reason = "vehicle_inactive"
	ReasonManuallyBlocked Reason = "manually_blocked"
	ReasonAlreadyReserved Reason = "already_reserved"
)

// VehicleReader 车辆读取口径（由 vehicle.Repo 实现）。
type VehicleReader interface {
	FindByID(ctx context.Context, id string) (*vehicle.Vehicle, error)
}

// BlockReader 封禁日批量读取口径（由 block.Repo 实现）。
// 整个区间一次查询，禁止按天循环打库。
type BlockReader interface {
	DaysInRange(ctx context.Context, vehicleID string, start, end daterange.Day) ([]daterange.Day, error)
}

// ReservationReader 预订重叠批量读取口径（由 reservation.Repo 实现）。
type ReservationReader interface {
	FindOverlapping(ctx context.Context, vehicleID string, start, end daterange.Day) ([]reservation.Reservation, error)
}

// DayStatus 单日可用性。Available 为 false 时 Reason 标注原因。
type DayStatus struct {
	Date           string `json:"date"`
	Available      bool   `json:"available"`
	Reason         Reason `json:"reason,omitempty"`
	DailyRateCents int64  `json:"daily_rate_cents"`
}

// Resolver 可用性解析器：合并手工封禁与预订两个独立的不可用来源。
// 无跨调用状态，每次都重读两个底层集合，用吞吐换正确性（没有缓存失效问题）。
type Resolver struct {
	vehicles     VehicleReader
	blocks       BlockReader
	reservations ReservationReader
}

func NewResolver(vehicles VehicleReader, blocks BlockReader, reservations ReservationReader) *Resolver {
	return &Resolver{vehicles: vehicles, blocks: blocks, reservations: reservations}
}

// IsRangeAvailable 判断整段区间是否可预订。
// 不可用时返回首个不可用日的原因；同一天同时命中封禁和预订时，
// 预订优先（运营上订单比手工封禁更重要）。
func (r *Resolver) IsRangeAvailable(ctx context.Context, vehicleID string, start, end daterange.Day) (bool, Reason, error) {
	statuses, err := r.resolve(ctx, vehicleID, start, end)
	if err != nil {
		return false, "", err
	}
	for _, st := range statuses {
		if !st.Available {
			return false, st.Reason, nil
		}
	}
	return true, "", nil
}

// DayMap 返回逐日可用性（日历渲染用），键为 2006-01-02。
// 口径约束：整个区间最多各读一次封禁集合与预订集合，逐日判定在内存完成。
func (r *Resolver) DayMap(ctx context.Context, vehicleID string, start, end daterange.Day) (map[string]DayStatus, error) {
	statuses, err := r.resolve(ctx, vehicleID, start, end)
	if err != nil {
		return nil, err
	}
	out := make(map[string]DayStatus, len(statuses))
	for _, st := range statuses {
		out[st.Date] = st
	}
	return out, nil
}

// resolve 单次批量读取 + 内存逐日判定，升序返回。
func (r *Resolver) resolve(ctx context.Context, vehicleID string, start, end daterange.Day) ([]DayStatus, error) {
	days, err := daterange.EnumerateDays(start, end)
	if err != nil {
		return nil, err
	}

	v, err := r.vehicles.FindByID(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("load vehicle %s: %w", vehicleID, err)
	}

	if !v.Active {
		out := make([]DayStatus, 0, len(days))
		for _, d := range days {
			out = append(out, DayStatus{
				Date:           d.String(),
				Available:      false,
				Reason:         ReasonVehicleInactive,
				DailyRateCents: v.DailyRateCents,
			})
		}
		return out, nil
	}

	blockedDays, err := r.blocks.DaysInRange(ctx, vehicleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load manual blocks: %w", err)
	}
	blocked := make(map[string]struct{}, len(blockedDays))
	for _, d := range blockedDays {
		blocked[d.String()] = struct{}{}
	}

	overlapping, err := r.reservations.FindOverlapping(ctx, vehicleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	type window struct{ start, end daterange.Day }
	windows := make([]window, 0, len(overlapping))
	for _, res := range overlapping {
		if !res.Blocking() {
			continue
		}
		ws, we, err := res.Window()
		if err != nil {
			return nil, fmt.Errorf("corrupt reservation %s: %w", res.ID, err)
		}
		windows = append(windows, window{start: ws, end: we})
	}

	out := make([]DayStatus, 0, len(days))
	for _, d := range days {
		st := DayStatus{
			Date:           d.String(),
			Available:      true,
			DailyRateCents: v.DailyRateCents,
		}
		// 同日并存时预订优先于手工封禁
		reserved := false
		for _, w := range windows {
			if !d.Before(w.start) && !d.After(w.end) {
				reserved = true
				break
			}
		}
		if reserved {
			st.Available = false
			st.Reason = ReasonAlreadyReserved
		} else if _, ok := blocked[d.String()]; ok {
			st.Available = false
			st.Reason = ReasonManuallyBlocked
		}
		out = append(out, st)
	}
	return out, nil
}
