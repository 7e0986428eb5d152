package booking

import (
	"errors"
	"fmt"

	"github.com/AureaDrive/AureaDrive/internal/availability"
)

var (
	// ErrQuoteMismatch 客户端报价与服务端权威报价偏差超出允许范围。
	// 永远不采信客户端金额，提示"价格有变，请重试"。
	ErrQuoteMismatch = errors.New("client quote does not match server quote")

	// ErrReservationNotFound 预订不存在。
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrInvalidTransition 非法状态流转（如对已完成订单再取消）。
	ErrInvalidTransition = errors.New("invalid reservation transition")
)

// UnavailableError 提交时刻区间已不可用（日历渲染与提交之间输掉了竞争，
// 或者车辆状态/封禁发生了变化）。Reason 仅用于前端文案。
type UnavailableError struct {
	Reason availability.Reason
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("slot no longer available: %s", e.Reason)
}

// IsUnavailable 判断并取出不可用原因。
func IsUnavailable(err error) (*UnavailableError, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
