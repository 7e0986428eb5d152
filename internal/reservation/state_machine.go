package reservation

import (
	"fmt"
	"time"
)

// AllowTransition 定义预订状态机的允许流转关系。
// 只进不退：cancel 是唯一可以从非终态跨入的"横向"流转。
var AllowTransition = map[Status][]Status{
	StatusProvisional: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:   {StatusActive, StatusCancelled},
	StatusActive:      {StatusCompleted, StatusCancelled},
	// 终态：不允许从 completed / cancelled 再流转
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition 对预订应用状态变更，并维护关键时间字段。
// 仅在 CanTransition 返回 true 时生效。
func ApplyTransition(r *Reservation, to Status, now time.Time) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}
	from := r.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid reservation status transition: %s -> %s", from, to)
	}

	r.Status = to

	switch to {
	case StatusConfirmed:
		if r.ConfirmedAt == nil {
			t := now
			r.ConfirmedAt = &t
		}
		// 确认后不再受 provisional 超时约束
		r.ExpiresAt = nil
	case StatusActive:
		if r.StartedAt == nil {
			t := now
			r.StartedAt = &t
		}
	case StatusCompleted:
		if r.CompletedAt == nil {
			t := now
			r.CompletedAt = &t
		}
	case StatusCancelled:
		if r.CancelledAt == nil {
			t := now
			r.CancelledAt = &t
		}
	}
	return nil
}
