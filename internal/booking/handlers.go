package booking

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/availability"
	"github.com/AureaDrive/AureaDrive/internal/common/logger"
	"github.com/AureaDrive/AureaDrive/internal/common/server"
	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"github.com/AureaDrive/AureaDrive/internal/pricing"
	"github.com/AureaDrive/AureaDrive/internal/reservation"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// CalendarReader 日历读取口径（由 availability.Resolver 实现）。
type CalendarReader interface {
	DayMap(ctx context.Context, vehicleID string, start, end daterange.Day) (map[string]availability.DayStatus, error)
}

// Handler 预订相关 HTTP 入口。
type Handler struct {
	svc      *Service
	vehicles availability.VehicleReader
	calendar CalendarReader
	log      logger.Logger
}

func NewHandler(svc *Service, vehicles availability.VehicleReader, calendar CalendarReader, log logger.Logger) *Handler {
	return &Handler{svc: svc, vehicles: vehicles, calendar: calendar, log: log}
}

// RegisterPublic 挂载公开路由。
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/quotes", h.Quote)
	r.Get("/vehicles/{id}/calendar", h.Calendar)
	r.Post("/reservations", h.Create)
	r.Get("/reservations/{id}", h.Get)
}

// RegisterBackOffice 挂载后台/支付方路由（外层已套认证中间件）。
func (h *Handler) RegisterBackOffice(r chi.Router) {
	r.Get("/reservations", h.List)
	r.Post("/reservations/{id}/confirm", h.transitionHandler(h.svc.Confirm))
	r.Post("/reservations/{id}/activate", h.transitionHandler(h.svc.Activate))
	r.Post("/reservations/{id}/complete", h.transitionHandler(h.svc.Complete))
	r.Post("/reservations/{id}/cancel", h.transitionHandler(h.svc.Cancel))
}

type quoteRequest struct {
	VehicleID string `json:"vehicle_id" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

// Quote POST /quotes 报价预览。只读，不占用任何日期。
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	start, end, ok := parseWindow(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}
	// 报价与准入用同一套区间规则，避免给出一个根本订不了的报价
	if err := h.svc.ValidateWindow(start, end); err != nil {
		server.Fail(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}

	v, err := h.vehicles.FindByID(r.Context(), req.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			server.Fail(w, http.StatusNotFound, "vehicle_not_found", "vehicle not found")
			return
		}
		h.serverError(w, r, err)
		return
	}

	quote, err := pricing.ForRange(v, start, end)
	if err != nil {
		server.Fail(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}
	server.OK(w, quote)
}

// Calendar GET /vehicles/{vehicleID}/calendar?start=&end= 逐日可用性。
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "id")
	start, end, ok := parseWindow(w, r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if !ok {
		return
	}
	if daterange.DaysInclusive(start, end) > 366 {
		server.Fail(w, http.StatusBadRequest, "invalid_range", "calendar window too large")
		return
	}

	m, err := h.calendar.DayMap(r.Context(), vehicleID, start, end)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			server.Fail(w, http.StatusNotFound, "vehicle_not_found", "vehicle not found")
			return
		}
		if errors.Is(err, daterange.ErrInvalidRange) {
			server.Fail(w, http.StatusBadRequest, "invalid_range", err.Error())
			return
		}
		h.serverError(w, r, err)
		return
	}
	server.OK(w, m)
}

type createReservationRequest struct {
	VehicleID     string `json:"vehicle_id" validate:"required"`
	StartDate     string `json:"start_date" validate:"required"`
	EndDate       string `json:"end_date" validate:"required"`
	CustomerName  string `json:"customer_name" validate:"required,max=128"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerPhone string `json:"customer_phone" validate:"omitempty,max=32"`

	// 客户端看到的小计，服务端只做偏差校验
	QuotedSubtotalCents int64 `json:"quoted_subtotal_cents" validate:"omitempty,gte=0"`
}

// Create POST /reservations 提交预订。
// 幂等键从 Idempotency-Key 请求头取；重试携带同一个键不会产生第二条记录。
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	start, end, ok := parseWindow(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	res, err := h.svc.Admit(r.Context(), AdmitInput{
		VehicleID:           req.VehicleID,
		Start:               start,
		End:                 end,
		CustomerName:        req.CustomerName,
		CustomerEmail:       req.CustomerEmail,
		CustomerPhone:       req.CustomerPhone,
		ClientSubtotalCents: req.QuotedSubtotalCents,
		IdempotencyKey:      r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeAdmitError(w, r, err)
		return
	}
	server.Created(w, viewOf(res))
}

// Get GET /reservations/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			server.Fail(w, http.StatusNotFound, "reservation_not_found", "reservation not found")
			return
		}
		h.serverError(w, r, err)
		return
	}
	server.OK(w, viewOf(res))
}

// List GET /reservations?vehicle_id=&status=&page=&per_page= 后台列表。
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	status := reservation.Status(q.Get("status"))
	list, total, err := h.svc.List(r.Context(), q.Get("vehicle_id"), status, (page-1)*perPage, perPage)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	views := make([]reservationView, 0, len(list))
	for i := range list {
		views = append(views, viewOf(&list[i]))
	}
	server.OKWithMeta(w, views, &server.Meta{Page: page, PerPage: perPage, Total: total})
}

func (h *Handler) transitionHandler(fn func(ctx context.Context, id string) (*reservation.Reservation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			switch {
			case errors.Is(err, ErrReservationNotFound):
				server.Fail(w, http.StatusNotFound, "reservation_not_found", "reservation not found")
			case errors.Is(err, ErrInvalidTransition):
				server.Fail(w, http.StatusConflict, "invalid_transition", err.Error())
			default:
				h.serverError(w, r, err)
			}
			return
		}
		server.OK(w, viewOf(res))
	}
}

func (h *Handler) writeAdmitError(w http.ResponseWriter, r *http.Request, err error) {
	if ue, ok := IsUnavailable(err); ok {
		server.Fail(w, http.StatusConflict, "unavailable", string(ue.Reason))
		return
	}
	switch {
	case errors.Is(err, daterange.ErrInvalidRange):
		server.Fail(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, ErrQuoteMismatch):
		server.Fail(w, http.StatusConflict, "quote_mismatch", "price has changed, please re-quote")
	default:
		h.serverError(w, r, err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	if h.log != nil {
		h.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	server.Fail(w, http.StatusInternalServerError, "internal", "internal server error")
}

// parseWindow 解析起止日期，失败时已写好 400 响应。
func parseWindow(w http.ResponseWriter, startStr, endStr string) (daterange.Day, daterange.Day, bool) {
	start, err := daterange.ParseDay(strings.TrimSpace(startStr))
	if err != nil {
		server.Fail(w, http.StatusBadRequest, "invalid_range", "start date must be YYYY-MM-DD")
		return daterange.Day{}, daterange.Day{}, false
	}
	end, err := daterange.ParseDay(strings.TrimSpace(endStr))
	if err != nil {
		server.Fail(w, http.StatusBadRequest, "invalid_range", "end date must be YYYY-MM-DD")
		return daterange.Day{}, daterange.Day{}, false
	}
	return start, end, true
}

// reservationView 预订响应体。不回传幂等键之外的内部字段。
type reservationView struct {
	ID        string `json:"id"`
	VehicleID string `json:"vehicle_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`

	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`

	DailyRateCents int64  `json:"daily_rate_cents"`
	TotalDays      int    `json:"total_days"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	DepositCents   int64  `json:"deposit_cents"`
	BalanceCents   int64  `json:"balance_cents"`
	Currency       string `json:"currency"`

	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func viewOf(r *reservation.Reservation) reservationView {
	return reservationView{
		ID:             r.ID,
		VehicleID:      r.VehicleID,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		Status:         string(r.Status),
		CustomerName:   r.CustomerName,
		CustomerEmail:  r.CustomerEmail,
		CustomerPhone:  r.CustomerPhone,
		DailyRateCents: r.DailyRateCents,
		TotalDays:      r.TotalDays,
		SubtotalCents:  r.SubtotalCents,
		DepositCents:   r.DepositCents,
		BalanceCents:   r.BalanceCents,
		Currency:       r.Currency,
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}
