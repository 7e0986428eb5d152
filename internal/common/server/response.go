package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Response 统一响应包装。
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorBody 错误响应体；Code 是稳定的机器可读码，Message 面向运营/前端展示。
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta 分页元信息。
type Meta struct {
	Page    int   `json:"page,omitempty"`
	PerPage int   `json:"per_page,omitempty"`
	Total   int64 `json:"total,omitempty"`
}

// JSON 写 JSON 响应。
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// OK 200 + data
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// OKWithMeta 200 + data + 分页信息
func OKWithMeta(w http.ResponseWriter, data any, meta *Meta) {
	JSON(w, http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// Created 201 + data
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Response{Success: true, Data: data})
}

// Fail 写错误响应。
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, Response{Success: false, Error: &ErrorBody{Code: code, Message: message}})
}

var validate = validator.New()

// DecodeJSON 解析请求体 JSON 并执行结构体校验（validate tag）。
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
