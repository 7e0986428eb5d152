package reservation

import (
	"time"

	"github.com/AureaDrive/AureaDrive/internal/daterange"
)

// Status 预订状态枚举（持久化为字符串）。
type Status string

const (
	StatusProvisional Status = "provisional" // 已创建，待支付定金
	StatusConfirmed   Status = "confirmed"   // 定金已到账
	StatusActive      Status = "active"      // 车辆已交付，租期进行中
	StatusCompleted   Status = "completed"   // 已还车结算
	StatusCancelled   Status = "cancelled"   // 已取消（客户/运营/支付失败/超时）
)

// Reservation 预订 GORM 模型。
// 价格快照在创建时冻结（I3）：之后调价不回溯已成立的订单。
type Reservation struct {
	ID string `gorm:"primaryKey;size:36"`

	// 业务关联；(vehicle_id, start_date) 组合索引供重叠区间查询与加锁使用
	VehicleID string `gorm:"index:idx_vehicle_window;size:36;not null"`

	// 闭区间自然日（2006-01-02，ISO 字面值按字典序可比较）
	StartDate string `gorm:"index:idx_vehicle_window;size:10;not null"`
	EndDate   string `gorm:"size:10;not null"`

	Status Status `gorm:"type:varchar(16);index;not null"`

	// 客户信息（后台日历展示用）
	CustomerName  string `gorm:"size:128"`
	CustomerEmail string `gorm:"size:128"`
	CustomerPhone string `gorm:"size:32"`

	// 价格快照（单位：分），创建后不可变
	DailyRateCents int64  `gorm:"not null;default:0"`
	TotalDays      int    `gorm:"not null;default:0"`
	SubtotalCents  int64  `gorm:"not null;default:0"`
	DepositCents   int64  `gorm:"not null;default:0"`
	BalanceCents   int64  `gorm:"not null;default:0"`
	Currency       string `gorm:"size:8;not null;default:'USD'"`

	// 幂等键：同一逻辑预订的重试不会产生第二条记录
	IdempotencyKey string `gorm:"uniqueIndex;size:64"`

	// 时间信息
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
	ExpiresAt   *time.Time `gorm:"index"` // provisional 超时兜底
	ConfirmedAt *time.Time // 定金确认时间
	StartedAt   *time.Time // 交车时间
	CompletedAt *time.Time // 还车时间
	CancelledAt *time.Time // 取消时间
}

// Window 返回预订覆盖的自然日闭区间。
func (r Reservation) Window() (start, end daterange.Day, err error) {
	start, err = daterange.ParseDay(r.StartDate)
	if err != nil {
		return daterange.Day{}, daterange.Day{}, err
	}
	end, err = daterange.ParseDay(r.EndDate)
	if err != nil {
		return daterange.Day{}, daterange.Day{}, err
	}
	return start, end, nil
}

// Blocking 该预订是否占用日历（取消的不占，保留仅作审计）。
func (r Reservation) Blocking() bool {
	return r.Status != StatusCancelled
}

// Terminal 是否终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}
