package daterange

import (
	"errors"
	"fmt"
	"time"
)

// Layout 自然日的统一格式（ISO，按字典序可比较，便于数据库区间查询）。
const Layout = "2006-01-02"

// ErrInvalidRange 表示非法的日期区间（倒序 / 起始日在过去 / 超出最大长度等）。
var ErrInvalidRange = errors.New("invalid date range")

// Day 自然日：不携带时分秒与时区语义，内部统一规整为 UTC 零点。
// 所有比较都是"日"粒度，与请求方所在时区无关。
type Day struct {
	t time.Time
}

// NewDay 按年月日构造 Day。
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf 取任意时刻所在的自然日（丢弃时分秒与时区偏移）。
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// ParseDay 解析 "2006-01-02" 格式的自然日。
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Day{}, fmt.Errorf("%w: parse day %q: %v", ErrInvalidRange, s, err)
	}
	return DayOf(t), nil
}

func (d Day) String() string { return d.t.Format(Layout) }

func (d Day) IsZero() bool { return d.t.IsZero() }

func (d Day) Before(o Day) bool { return d.t.Before(o.t) }

func (d Day) After(o Day) bool { return d.t.After(o.t) }

func (d Day) Equal(o Day) bool { return d.t.Equal(o.t) }

// AddDays 返回向后（或向前，n 为负）偏移 n 天的自然日。
func (d Day) AddDays(n int) Day {
	return Day{t: d.t.AddDate(0, 0, n)}
}

// Time 返回该自然日的 UTC 零点时刻。
func (d Day) Time() time.Time { return d.t }

// DaysInclusive 返回 [start, end] 闭区间覆盖的天数（end < start 时返回 0）。
func DaysInclusive(start, end Day) int {
	if end.Before(start) {
		return 0
	}
	return int(end.t.Sub(start.t)/(24*time.Hour)) + 1
}

// EnumerateDays 枚举 [start, end] 闭区间内的所有自然日（升序）。
// end < start 时返回 ErrInvalidRange；合法区间恰好产生 (end-start)+1 个元素。
func EnumerateDays(start, end Day) ([]Day, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, end, start)
	}
	n := DaysInclusive(start, end)
	days := make([]Day, 0, n)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days, nil
}

// ValidateRange 校验预订区间：
// - end 不得早于 start
// - start 不得早于 today（不允许预订过去的日期）
// - 区间长度不得超过 maxDays（maxDays <= 0 时不限制）
func ValidateRange(start, end, today Day, maxDays int) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, end, start)
	}
	if start.Before(today) {
		return fmt.Errorf("%w: start %s is in the past (today %s)", ErrInvalidRange, start, today)
	}
	if maxDays > 0 {
		if n := DaysInclusive(start, end); n > maxDays {
			return fmt.Errorf("%w: range spans %d days, max %d", ErrInvalidRange, n, maxDays)
		}
	}
	return nil
}

// Overlaps 判断两个闭区间 [aStart, aEnd] 与 [bStart, bEnd] 是否有交集。
func Overlaps(aStart, aEnd, bStart, bEnd Day) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}
