package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/AureaDrive/AureaDrive/internal/common/config"
	"github.com/AureaDrive/AureaDrive/internal/common/logger"
	"github.com/AureaDrive/AureaDrive/internal/common/server"
	"github.com/go-chi/chi/v5"
)

// Handler 运营后台登录入口。
// 凭据来自配置下发的单账号；换成真正的用户体系时只需替换 verify。
type Handler struct {
	cfg config.AuthConfig
	log logger.Logger
}

func NewHandler(cfg config.AuthConfig, log logger.Logger) *Handler {
	return &Handler{cfg: cfg, log: log}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/login", h.login)
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if !h.verify(req.Username, req.Password) {
		if h.log != nil {
			h.log.Warnf("admin login rejected for user %q", req.Username)
		}
		server.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		return
	}

	token, expiresAt, err := GenerateAccessToken(h.cfg, req.Username, []string{"admin"}, 24*time.Hour)
	if err != nil {
		if h.log != nil {
			h.log.Errorf("generate access token: %v", err)
		}
		server.Fail(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	server.OK(w, loginResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

// verify 常数时间比较，避免账号探测的时序侧信道。
func (h *Handler) verify(username, password string) bool {
	if h.cfg.AdminUsername == "" || h.cfg.AdminPassword == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.cfg.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.cfg.AdminPassword)) == 1
	return userOK && passOK
}
