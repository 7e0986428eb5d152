package daterange

import (
	"errors"
	"testing"
	"time"
)

func TestEnumerateDays(t *testing.T) {
	start := NewDay(2024, time.June, 1)
	end := NewDay(2024, time.June, 3)

	days, err := EnumerateDays(start, end)
	if err != nil {
		t.Fatalf("EnumerateDays: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	if days[0].String() != "2024-06-01" || days[2].String() != "2024-06-03" {
		t.Fatalf("unexpected days: %v", days)
	}

	// 单日区间也是合法区间
	one, err := EnumerateDays(start, start)
	if err != nil || len(one) != 1 {
		t.Fatalf("expected single day, got %v err=%v", one, err)
	}

	if _, err := EnumerateDays(end, start); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for inverted range, got %v", err)
	}
}

func TestDaysInclusive(t *testing.T) {
	start := NewDay(2024, time.June, 1)
	if n := DaysInclusive(start, start.AddDays(6)); n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}
	if n := DaysInclusive(start, start); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	if n := DaysInclusive(start, start.AddDays(-1)); n != 0 {
		t.Fatalf("expected 0 for inverted, got %d", n)
	}
}

func TestValidateRange(t *testing.T) {
	today := NewDay(2024, time.June, 1)

	if err := ValidateRange(today, today.AddDays(2), today, 30); err != nil {
		t.Fatalf("expected valid range, got %v", err)
	}
	if err := ValidateRange(today.AddDays(2), today, today, 30); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for inverted, got %v", err)
	}
	if err := ValidateRange(today.AddDays(-1), today, today, 30); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for past start, got %v", err)
	}
	if err := ValidateRange(today, today.AddDays(30), today, 30); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange beyond max length, got %v", err)
	}
	// maxDays <= 0 不限制长度
	if err := ValidateRange(today, today.AddDays(365), today, 0); err != nil {
		t.Fatalf("expected unlimited range to pass, got %v", err)
	}
}

func TestParseDayAndDayOf(t *testing.T) {
	d, err := ParseDay("2024-06-02")
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	if d.String() != "2024-06-02" {
		t.Fatalf("round trip mismatch: %s", d)
	}
	if _, err := ParseDay("02/06/2024"); err == nil {
		t.Fatalf("expected parse error")
	}

	// 任意时区的同一时刻应归到同一自然日字面值
	loc := time.FixedZone("UTC+8", 8*3600)
	late := time.Date(2024, time.June, 2, 23, 30, 0, 0, loc)
	if got := DayOf(late); got.String() != "2024-06-02" {
		t.Fatalf("DayOf dropped to wrong day: %s", got)
	}
}

func TestOverlaps(t *testing.T) {
	d := func(n int) Day { return NewDay(2024, time.June, n) }

	cases := []struct {
		aS, aE, bS, bE int
		want           bool
	}{
		{1, 3, 3, 5, true},  // 共享边界日
		{1, 3, 4, 6, false}, // 相邻不相交
		{1, 10, 4, 6, true}, // 包含
		{5, 6, 1, 3, false},
	}
	for _, c := range cases {
		if got := Overlaps(d(c.aS), d(c.aE), d(c.bS), d(c.bE)); got != c.want {
			t.Fatalf("Overlaps(%d-%d, %d-%d) = %v, want %v", c.aS, c.aE, c.bS, c.bE, got, c.want)
		}
	}
}
