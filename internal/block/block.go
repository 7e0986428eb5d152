package block

import (
	"time"

	"github.com/AureaDrive/AureaDrive/internal/daterange"
)

// ManualBlock 运营手工封禁的自然日，一行一个 (vehicle_id, day)。
// 封禁/解禁是按天独立的开关（保存时整体替换），没有隐式过期。
type ManualBlock struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	VehicleID string `gorm:"uniqueIndex:uk_vehicle_day;size:36;not null"`
	Day       string `gorm:"uniqueIndex:uk_vehicle_day;size:10;not null"` // 2006-01-02
	Reason    string `gorm:"size:255"`                                    // 如 maintenance / detailing

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// DayValue 解析 Day 字段为自然日。
func (b ManualBlock) DayValue() (daterange.Day, error) {
	return daterange.ParseDay(b.Day)
}
