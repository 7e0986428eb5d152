package vehicle

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/common/logger"
	"github.com/AureaDrive/AureaDrive/internal/common/server"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Handler 车队 HTTP 入口：公开侧只读，后台侧增删改。
type Handler struct {
	repo *Repo
	log  logger.Logger
}

func NewHandler(repo *Repo, log logger.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

// RegisterPublic 公开路由：只展示 Listed 的车辆。
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/vehicles", h.listPublic)
	r.Get("/vehicles/{id}", h.get)
}

// RegisterAdmin 后台路由（外层已套认证中间件）。
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/vehicles", h.listAll)
	r.Get("/vehicles/{id}", h.get)
	r.Post("/vehicles", h.create)
	r.Put("/vehicles/{id}", h.update)
	r.Delete("/vehicles/{id}", h.delete)
}

type vehicleRequest struct {
	Name           string `json:"name" validate:"required,max=128"`
	Make           string `json:"make" validate:"omitempty,max=64"`
	Model          string `json:"model" validate:"omitempty,max=64"`
	Year           int    `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	DailyRateCents int64  `json:"daily_rate_cents" validate:"required,gt=0"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
	Active         *bool  `json:"active"`
	Listed         *bool  `json:"listed"`
	Description    string `json:"description" validate:"omitempty,max=1024"`
	ImageURL       string `json:"image_url" validate:"omitempty,url,max=512"`
}

func (req *vehicleRequest) apply(v *Vehicle) {
	v.Name = req.Name
	v.Make = req.Make
	v.Model = req.Model
	v.Year = req.Year
	v.DailyRateCents = req.DailyRateCents
	if req.Currency != "" {
		v.Currency = req.Currency
	}
	if req.Active != nil {
		v.Active = *req.Active
	}
	if req.Listed != nil {
		v.Listed = *req.Listed
	}
	v.Description = req.Description
	v.ImageURL = req.ImageURL
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	v := &Vehicle{
		ID:       uuid.NewString(),
		Currency: "USD",
		Active:   true,
		Listed:   true,
	}
	req.apply(v)

	if err := h.repo.Upsert(r.Context(), v); err != nil {
		h.serverError(w, err)
		return
	}
	server.Created(w, viewOf(v))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	v, err := h.repo.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			server.Fail(w, http.StatusNotFound, "vehicle_not_found", "vehicle not found")
			return
		}
		h.serverError(w, err)
		return
	}
	req.apply(v)

	if err := h.repo.Upsert(r.Context(), v); err != nil {
		h.serverError(w, err)
		return
	}
	server.OK(w, viewOf(v))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.serverError(w, err)
		return
	}
	server.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	v, err := h.repo.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			server.Fail(w, http.StatusNotFound, "vehicle_not_found", "vehicle not found")
			return
		}
		h.serverError(w, err)
		return
	}
	server.OK(w, viewOf(v))
}

func (h *Handler) listPublic(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, listedOnly bool) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	vehicles, total, err := h.repo.List(r.Context(), listedOnly, (page-1)*perPage, perPage)
	if err != nil {
		h.serverError(w, err)
		return
	}
	views := make([]vehicleView, 0, len(vehicles))
	for i := range vehicles {
		views = append(views, viewOf(&vehicles[i]))
	}
	server.OKWithMeta(w, views, &server.Meta{Page: page, PerPage: perPage, Total: total})
}

func (h *Handler) serverError(w http.ResponseWriter, err error) {
	if h.log != nil {
		h.log.Errorf("vehicle handler: %v", err)
	}
	server.Fail(w, http.StatusInternalServerError, "internal", "internal server error")
}

type vehicleView struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Make           string    `json:"make,omitempty"`
	Model          string    `json:"model,omitempty"`
	Year           int       `json:"year,omitempty"`
	DailyRateCents int64     `json:"daily_rate_cents"`
	Currency       string    `json:"currency"`
	Active         bool      `json:"active"`
	Listed         bool      `json:"listed"`
	Description    string    `json:"description,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func viewOf(v *Vehicle) vehicleView {
	return vehicleView{
		ID:             v.ID,
		Name:           v.Name,
		Make:           v.Make,
		Model:          v.Model,
		Year:           v.Year,
		DailyRateCents: v.DailyRateCents,
		Currency:       v.Currency,
		Active:         v.Active,
		Listed:         v.Listed,
		Description:    v.Description,
		ImageURL:       v.ImageURL,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}
