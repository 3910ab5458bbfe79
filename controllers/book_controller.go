package controllers

import (
	"net/http"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/models"

	"github.com/gin-gonic/gin"
)

type BookController struct{ *Srv }

func NewBookController(s *Srv) *BookController { return &BookController{Srv: s} }

// 目录列表，?q= 模糊匹配标题/作者
func (bc *BookController) ListBooks(c *gin.Context) {
	books, err := bc.Repo.ListBooks(c.Request.Context(), c.Query("q"))
	if err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"books": books})
}

// 可借的书（新借阅的下拉框）
func (bc *BookController) AvailableBooks(c *gin.Context) {
	books, err := bc.Repo.AvailableBooks(c.Request.Context())
	if err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"books": books})
}

// 详情：书 + 借阅历史 + 预约
func (bc *BookController) GetBook(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	b, err := bc.Repo.GetBook(ctx, id)
	if err != nil {
		bc.respondError(c, err)
		return
	}
	loans, err := bc.Repo.ListLoans(ctx, db.LoanFilter{BookID: id})
	if err != nil {
		bc.respondError(c, err)
		return
	}
	res, err := bc.Repo.ListReservations(ctx, db.ReservationFilter{BookID: id})
	if err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"book":         b,
		"loans":        bc.loanViews(loans),
		"reservations": bc.reservationViews(res),
	})
}

func (bc *BookController) CreateBook(c *gin.Context) {
	var in models.Book
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}
	b, err := bc.Engine.CreateBook(c.Request.Context(), &in)
	if err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// 编辑目录字段；available 由借还决定，请求里的值被忽略
func (bc *BookController) UpdateBook(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in models.Book
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}
	b, err := bc.Engine.UpdateBook(c.Request.Context(), id, &in)
	if err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (bc *BookController) DeleteBook(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := bc.Engine.DeleteBook(c.Request.Context(), id); err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// 从书详情页直接借出
func (bc *BookController) QuickLoan(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in loanInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}
	in.BookID = id
	req, err := in.request()
	if err != nil {
		bc.respondError(c, err)
		return
	}
	l, err := bc.Engine.IssueLoan(c.Request.Context(), req)
	if err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bc.loanView(*l))
}

// 从书详情页直接预约
func (bc *BookController) QuickReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in reservationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}
	in.BookID = id
	req, err := in.request()
	if err != nil {
		bc.respondError(c, err)
		return
	}
	r, err := bc.Engine.PlaceReservation(c.Request.Context(), req)
	if err != nil {
		bc.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bc.reservationView(*r))
}

func (bc *BookController) Reconcile(c *gin.Context) {
	fixed, err := bc.Engine.Reconcile(c.Request.Context())
	if err != nil {
		bc.respondError(c, err)
		return
	}
	if fixed == nil {
		fixed = []uint{}
	}
	c.JSON(http.StatusOK, app.H{"fixed": fixed})
}
