package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"github.com/AureaDrive/AureaDrive/internal/vehicle"
)

func TestForRangeHappyPath(t *testing.T) {
	// 日租金 $300，2024-06-01 ~ 2024-06-03：3 天，小计 $900，定金 $270，尾款 $630
	v := &vehicle.Vehicle{ID: "v-1", DailyRateCents: 30000, Currency: "USD"}
	start := daterange.NewDay(2024, time.June, 1)
	end := daterange.NewDay(2024, time.June, 3)

	q, err := ForRange(v, start, end)
	if err != nil {
		t.Fatalf("ForRange: %v", err)
	}
	if q.TotalDays != 3 {
		t.Fatalf("expected 3 days, got %d", q.TotalDays)
	}
	if q.SubtotalCents != 90000 {
		t.Fatalf("expected subtotal 90000, got %d", q.SubtotalCents)
	}
	if q.DepositCents != 27000 {
		t.Fatalf("expected deposit 27000, got %d", q.DepositCents)
	}
	if q.BalanceCents != 63000 {
		t.Fatalf("expected balance 63000, got %d", q.BalanceCents)
	}
}

func TestForRangeInvalidRange(t *testing.T) {
	v := &vehicle.Vehicle{ID: "v-1", DailyRateCents: 30000}
	start := daterange.NewDay(2024, time.June, 5)
	end := daterange.NewDay(2024, time.June, 1)
	if _, err := ForRange(v, start, end); !errors.Is(err, daterange.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

// 定金 + 尾款 == 小计，对各种日租金与天数成立（I5 一致性）。
func TestDepositPlusBalanceEqualsSubtotal(t *testing.T) {
	start := daterange.NewDay(2024, time.June, 1)
	rates := []int64{1, 99, 12345, 30000, 149999}
	for _, rate := range rates {
		for days := 1; days <= 45; days++ {
			v := &vehicle.Vehicle{ID: "v-1", DailyRateCents: rate}
			q, err := ForRange(v, start, start.AddDays(days-1))
			if err != nil {
				t.Fatalf("ForRange rate=%d days=%d: %v", rate, days, err)
			}
			if q.DepositCents+q.BalanceCents != q.SubtotalCents {
				t.Fatalf("rate=%d days=%d: deposit %d + balance %d != subtotal %d",
					rate, days, q.DepositCents, q.BalanceCents, q.SubtotalCents)
			}
			if q.SubtotalCents != int64(days)*rate {
				t.Fatalf("rate=%d days=%d: subtotal %d", rate, days, q.SubtotalCents)
			}
		}
	}
}

// 同样输入重复计算结果一致（报价可重放）。
func TestForRangeDeterministic(t *testing.T) {
	v := &vehicle.Vehicle{ID: "v-1", DailyRateCents: 88800, Currency: "USD"}
	start := daterange.NewDay(2024, time.July, 10)
	end := daterange.NewDay(2024, time.July, 20)

	q1, err := ForRange(v, start, end)
	if err != nil {
		t.Fatalf("ForRange: %v", err)
	}
	q2, err := ForRange(v, start, end)
	if err != nil {
		t.Fatalf("ForRange: %v", err)
	}
	if q1 != q2 {
		t.Fatalf("expected identical quotes, got %+v vs %+v", q1, q2)
	}
}
