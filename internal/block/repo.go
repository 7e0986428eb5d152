package block

import (
	"context"
	"fmt"

	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// DaysInRange 一次查询取出 [start, end] 窗口内该车辆的全部封禁日。
// 这是可用性解析器的批量读取口径：整月日历也只打一次库。
func (r *Repo) DaysInRange(ctx context.Context, vehicleID string, start, end daterange.Day) ([]daterange.Day, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	var rows []ManualBlock
	err := db.
		Where("vehicle_id = ? AND day >= ? AND day <= ?", vehicleID, start.String(), end.String()).
		Order("day asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	days := make([]daterange.Day, 0, len(rows))
	for _, row := range rows {
		d, err := row.DayValue()
		if err != nil {
			return nil, fmt.Errorf("corrupt block row id=%d: %w", row.ID, err)
		}
		days = append(days, d)
	}
	return days, nil
}

// ListForVehicle 返回该车辆的全部封禁日（后台日历编辑用）。
func (r *Repo) ListForVehicle(ctx context.Context, vehicleID string) ([]ManualBlock, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rows []ManualBlock
	if err := db.Where("vehicle_id = ?", vehicleID).Order("day asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceForVehicle 实现后台"保存"动作：用给定集合整体替换该车辆的封禁日。
// 在一个事务里先删后插，保证保存动作原子可见。
func (r *Repo) ReplaceForVehicle(ctx context.Context, vehicleID string, days []daterange.Day, reason string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vehicle_id = ?", vehicleID).Delete(&ManualBlock{}).Error; err != nil {
			return err
		}
		if len(days) == 0 {
			return nil
		}
		rows := make([]ManualBlock, 0, len(days))
		seen := make(map[string]struct{}, len(days))
		for _, d := range days {
			key := d.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			rows = append(rows, ManualBlock{
				VehicleID: vehicleID,
				Day:       key,
				Reason:    reason,
			})
		}
		return tx.Create(&rows).Error
	})
}
