package block

import (
	"errors"
	"net/http"

	"github.com/AureaDrive/AureaDrive/internal/common/logger"
	"github.com/AureaDrive/AureaDrive/internal/common/server"
	"github.com/AureaDrive/AureaDrive/internal/daterange"
	"github.com/go-chi/chi/v5"
)

// Handler 封禁日后台 HTTP 入口。
type Handler struct {
	repo *Repo
	log  logger.Logger
}

func NewHandler(repo *Repo, log logger.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

// RegisterAdmin 后台路由（外层已套认证中间件）。
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/vehicles/{id}/blocked-days", h.list)
	r.Put("/vehicles/{id}/blocked-days", h.replace)
}

type blockedDaysView struct {
	VehicleID string           `json:"vehicle_id"`
	Days      []blockedDayView `json:"days"`
}

type blockedDayView struct {
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "id")
	rows, err := h.repo.ListForVehicle(r.Context(), vehicleID)
	if err != nil {
		h.serverError(w, err)
		return
	}

	view := blockedDaysView{VehicleID: vehicleID, Days: make([]blockedDayView, 0, len(rows))}
	for _, row := range rows {
		view.Days = append(view.Days, blockedDayView{Date: row.Day, Reason: row.Reason})
	}
	server.OK(w, view)
}

type replaceRequest struct {
	// Days 保存后的完整封禁日集合；空集合表示清空全部封禁
	Days   []string `json:"days" validate:"dive,datetime=2006-01-02"`
	Reason string   `json:"reason" validate:"omitempty,max=256"`
}

// replace 实现后台"保存"动作：整体替换该车辆的封禁日集合。
// 重复提交同一集合是幂等的。
func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "id")

	var req replaceRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	days := make([]daterange.Day, 0, len(req.Days))
	for _, s := range req.Days {
		d, err := daterange.ParseDay(s)
		if err != nil {
			if errors.Is(err, daterange.ErrInvalidRange) {
				server.Fail(w, http.StatusBadRequest, "bad_request", "days must be YYYY-MM-DD")
				return
			}
			h.serverError(w, err)
			return
		}
		days = append(days, d)
	}

	if err := h.repo.ReplaceForVehicle(r.Context(), vehicleID, days, req.Reason); err != nil {
		h.serverError(w, err)
		return
	}
	h.list(w, r)
}

func (h *Handler) serverError(w http.ResponseWriter, err error) {
	if h.log != nil {
		h.log.Errorf("block handler: %v", err)
	}
	server.Fail(w, http.StatusInternalServerError, "internal", "internal server error")
}
