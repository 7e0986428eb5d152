package pricing

import (
	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"github.com/AureaDrive/AureaDrive/internal/vehicle"
)

// DepositPercent 定金比例（百分比整数）。全站固定 30%。
const DepositPercent = 30

// Quote 报价快照（单位：分）。与入参一一对应，可随时重放复算（争议处理用）。
type Quote struct {
	VehicleID      string `json:"vehicle_id"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	DailyRateCents int64  `json:"daily_rate_cents"`
	TotalDays      int    `json:"total_days"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	DepositCents   int64  `json:"deposit_cents"`
	BalanceCents   int64  `json:"balance_cents"`
	Currency       string `json:"currency"`
}

// ForRange 计算报价。纯函数：同样输入永远得到同样报价。
// subtotal = 天数 * 日租金；deposit = round_half_up(subtotal * 30%)；
// balance = subtotal - deposit，三者恒等（I5）。
func ForRange(v *vehicle.Vehicle, start, end daterange.Day) (Quote, error) {
	if _, err := daterange.EnumerateDays(start, end); err != nil {
		return Quote{}, err
	}

	days := daterange.DaysInclusive(start, end)
	subtotal := int64(days) * v.DailyRateCents
	deposit := roundHalfUpPercent(subtotal, DepositPercent)

	return Quote{
		VehicleID:      v.ID,
		StartDate:      start.String(),
		EndDate:        end.String(),
		DailyRateCents: v.DailyRateCents,
		TotalDays:      days,
		SubtotalCents:  subtotal,
		DepositCents:   deposit,
		BalanceCents:   subtotal - deposit,
		Currency:       v.Currency,
	}, nil
}

// roundHalfUpPercent 按整数分计算 amount 的 percent%，四舍五入。
func roundHalfUpPercent(amount int64, percent int64) int64 {
	return (amount*percent + 50) / 100
}
