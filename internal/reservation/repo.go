package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrOverlap 车辆在目标区间已被占用（非取消态预订重叠）。
	ErrOverlap = errors.New("reservation window overlaps an existing reservation")
	// ErrDuplicateKey 幂等键已存在（同一逻辑预订的重试）。
	ErrDuplicateKey = errors.New("idempotency key already used")
	// ErrStatusChanged 状态条件更新没有命中（并发流转先行落库）。
	ErrStatusChanged = errors.New("reservation status changed concurrently")
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

// CreateIfFree 条件写入：仅当该车辆在 [StartDate, EndDate] 没有非取消态预订时插入。
//
// 互斥是存储层的硬性要求，而不是进程内检查能替代的：
// 这里在一个事务中先对重叠窗口做 SELECT ... FOR UPDATE，再插入。
// 依赖 InnoDB 在 (vehicle_id, start_date) 索引区间上的 next-key 锁
// （REPEATABLE READ）阻塞并发的同车同窗插入；两个并发请求只会有一个成功。
func (r *Repo) CreateIfFree(ctx context.Context, res *Reservation) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if res == nil {
		return fmt.Errorf("reservation is nil")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var conflicts []Reservation
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("vehicle_id = ? AND status <> ? AND start_date <= ? AND end_date >= ?",
				res.VehicleID, StatusCancelled, res.EndDate, res.StartDate).
			Limit(1).
			Find(&conflicts).Error
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return ErrOverlap
		}

		if err := tx.Create(res).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateKey
			}
			return err
		}
		return nil
	})
}

// FindOverlapping 一次查询取出与 [start, end] 相交的全部非取消态预订。
// 可用性解析器的批量读取口径。
func (r *Repo) FindOverlapping(ctx context.Context, vehicleID string, start, end daterange.Day) ([]Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []Reservation
	err := db.
		Where("vehicle_id = ? AND status <> ? AND start_date <= ? AND end_date >= ?",
			vehicleID, StatusCancelled, end.String(), start.String()).
		Order("start_date asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var res Reservation
	if err := db.Where("id = ?", id).First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repo) GetByIdempotencyKey(ctx context.Context, key string) (*Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var res Reservation
	if err := db.Where("idempotency_key = ?", key).First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateStatus 条件持久化状态流转：仅当库中状态仍为 from 时写入。
// 读取快照与写回之间可能有并发流转（支付回调、过期清理）先行落库，
// 命中 0 行即输掉竞争，返回 ErrStatusChanged，由调用方重读后重试或放弃。
// 价格快照列不在更新集内（I3：快照一经写入不可变）。
func (r *Repo) UpdateStatus(ctx context.Context, res *Reservation, from Status) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if res == nil {
		return fmt.Errorf("reservation is nil")
	}
	tx := db.Model(res).
		Where("status = ?", from).
		Select("Status", "ExpiresAt", "ConfirmedAt", "StartedAt", "CompletedAt", "CancelledAt").
		Updates(res)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

// List 支持按 vehicle_id / status 过滤 + 分页（后台列表用）。
func (r *Repo) List(ctx context.Context, vehicleID string, status Status, offset, limit int) ([]Reservation, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := db.Model(&Reservation{})
	if vehicleID != "" {
		q = q.Where("vehicle_id = ?", vehicleID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []Reservation
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// FindExpiredProvisional 取出已过期仍未确认的 provisional 预订（过期清理用）。
func (r *Repo) FindExpiredProvisional(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 100
	}
	var out []Reservation
	err := db.
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", StatusProvisional, now).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
