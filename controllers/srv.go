// controllers/srv.go
package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/circulation"
	"Gin_postgres_redis_library/config"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Srv struct {
	Repo   *db.Repo
	Engine *circulation.Engine
	Log    *zap.Logger
	Cfg    config.Config
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Repo:   a.Repo,
		Engine: a.Engine,
		Log:    a.Log.Named("api"),
		Cfg:    a.Config,
	}
}

// --- helpers ---

// respondError 把引擎错误映射成 HTTP 状态码 + {"error","kind"}
func (s *Srv) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := circulation.Code(err)
	msg := circulation.Message(err)

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		status, kind, msg = http.StatusNotFound, "not_found", "record not found"
	case errors.Is(err, circulation.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, circulation.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, circulation.ErrInvalidState),
		errors.Is(err, circulation.ErrBookUnavailable),
		errors.Is(err, circulation.ErrDuplicateLoan),
		errors.Is(err, circulation.ErrDuplicateReservation),
		errors.Is(err, circulation.ErrConcurrencyConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		// 存储错误不把细节暴露给客户端
		s.Log.Error("request failed", zap.String("request_id", app.RequestID(c)), zap.Error(err))
		msg = "internal error"
	}
	_ = c.Error(err)
	c.JSON(status, app.H{"error": msg, "kind": kind})
}

func badRequest(c *gin.Context, format string, args ...any) {
	c.JSON(http.StatusBadRequest, app.H{"error": fmt.Sprintf(format, args...), "kind": "validation_error"})
}

// idParam 解析路径里的正整数 id；失败时已写好 400
func idParam(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		badRequest(c, "invalid %s", name)
		return 0, false
	}
	return uint(n), true
}

func queryID(c *gin.Context, name string) (uint, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		badRequest(c, "invalid %s", name)
		return 0, false
	}
	return uint(n), true
}

// parseDay 接受 2006-01-02 或 RFC3339；空串视为未填
func parseDay(field string, s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, &circulation.Error{Kind: circulation.ErrValidation, Detail: fmt.Sprintf("%s must be a date (YYYY-MM-DD)", field)}
	}
	return &t, nil
}

// --- views ---

type loanView struct {
	models.Loan
	Overdue bool `json:"overdue"`
}

type reservationView struct {
	models.Reservation
	Expired bool `json:"expired"`
}

func (s *Srv) loanView(l models.Loan) loanView {
	return loanView{Loan: l, Overdue: s.Engine.IsOverdue(l)}
}

func (s *Srv) loanViews(ls []models.Loan) []loanView {
	out := make([]loanView, 0, len(ls))
	for _, l := range ls {
		out = append(out, s.loanView(l))
	}
	return out
}

func (s *Srv) reservationView(r models.Reservation) reservationView {
	return reservationView{Reservation: r, Expired: s.Engine.IsExpired(r)}
}

func (s *Srv) reservationViews(rs []models.Reservation) []reservationView {
	out := make([]reservationView, 0, len(rs))
	for _, r := range rs {
		out = append(out, s.reservationView(r))
	}
	return out
}
