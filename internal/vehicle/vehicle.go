package vehicle

import (
	"time"
)

// Vehicle 是 vehicles 表的 GORM 模型。
// 预订引擎侧只读；写入全部来自车队管理接口。
type Vehicle struct {
	ID    string `gorm:"primaryKey;size:36"`
	Name  string `gorm:"size:128;not null"` // 展示名，如 "Rolls-Royce Ghost"
	Make  string `gorm:"size:64"`
	Model string `gorm:"size:64"`
	Year  int    `gorm:"not null;default:0"`

	// 金额信息（单位：分）
	DailyRateCents int64  `gorm:"not null;default:0"`
	Currency       string `gorm:"size:8;not null;default:'USD'"`

	// Active 是否可被预订；Listed 是否出现在公开列表。
	// 二者相互独立：一辆车可以下架展示但仍可履约既有订单，反之亦然。
	Active bool `gorm:"not null;default:true"`
	Listed bool `gorm:"not null;default:true"`

	Description string `gorm:"size:1024"`
	ImageURL    string `gorm:"size:512"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
