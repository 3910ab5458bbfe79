package controllers

import (
	"net/http"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/circulation"
	"Gin_postgres_redis_library/db"

	"github.com/gin-gonic/gin"
)

type LoanController struct{ *Srv }

func NewLoanController(s *Srv) *LoanController { return &LoanController{Srv: s} }

type loanInput struct {
	BookID   uint    `json:"bookId"`
	Borrower string  `json:"borrower"`
	LoanDate *string `json:"loanDate"`
	DueDate  *string `json:"dueDate"`
	Notes    string  `json:"notes"`
}

func (in loanInput) request() (circulation.LoanRequest, error) {
	req := circulation.LoanRequest{BookID: in.BookID, Borrower: in.Borrower, Notes: in.Notes}
	var err error
	if req.LoanDate, err = parseDay("loanDate", in.LoanDate); err != nil {
		return req, err
	}
	if req.DueDate, err = parseDay("dueDate", in.DueDate); err != nil {
		return req, err
	}
	return req, nil
}

type loanEditInput struct {
	BookID   *uint   `json:"bookId"`
	Borrower *string `json:"borrower"`
	LoanDate *string `json:"loanDate"`
	DueDate  *string `json:"dueDate"`
	Notes    *string `json:"notes"`
}

func (in loanEditInput) edit() (circulation.LoanEdit, error) {
	e := circulation.LoanEdit{BookID: in.BookID, Borrower: in.Borrower, Notes: in.Notes}
	var err error
	if e.LoanDate, err = parseDay("loanDate", in.LoanDate); err != nil {
		return e, err
	}
	if e.DueDate, err = parseDay("dueDate", in.DueDate); err != nil {
		return e, err
	}
	return e, nil
}

// 借阅列表 ?status=active|returned|overdue&bookId=&borrower=
func (lc *LoanController) ListLoans(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", "active", "returned", "overdue":
	default:
		badRequest(c, "invalid status %q", status)
		return
	}
	bookID, ok := queryID(c, "bookId")
	if !ok {
		return
	}
	loans, err := lc.Repo.ListLoans(c.Request.Context(), db.LoanFilter{
		Status:   status,
		BookID:   bookID,
		Borrower: c.Query("borrower"),
		Today:    lc.Engine.Today(),
	})
	if err != nil {
		lc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"loans": lc.loanViews(loans)})
}

func (lc *LoanController) GetLoan(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	l, err := lc.Repo.GetLoan(c.Request.Context(), id)
	if err != nil {
		lc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lc.loanView(*l))
}

func (lc *LoanController) CreateLoan(c *gin.Context) {
	var in loanInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}
	req, err := in.request()
	if err != nil {
		lc.respondError(c, err)
		return
	}
	l, err := lc.Engine.IssueLoan(c.Request.Context(), req)
	if err != nil {
		lc.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lc.loanView(*l))
}

// 可改书/借阅人/日期/备注；状态只能通过归还改变
func (lc *LoanController) UpdateLoan(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in loanEditInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}
	edit, err := in.edit()
	if err != nil {
		lc.respondError(c, err)
		return
	}
	l, err := lc.Engine.UpdateLoan(c.Request.Context(), id, edit)
	if err != nil {
		lc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lc.loanView(*l))
}

func (lc *LoanController) DeleteLoan(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := lc.Engine.DeleteLoan(c.Request.Context(), id); err != nil {
		lc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// 归还；body 可省略，{"returnDate": "2006-01-02"} 可补登
func (lc *LoanController) ReturnLoan(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in struct {
		ReturnDate *string `json:"returnDate"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "invalid body: %v", err)
			return
		}
	}
	rd, err := parseDay("returnDate", in.ReturnDate)
	if err != nil {
		lc.respondError(c, err)
		return
	}
	l, err := lc.Engine.ReturnLoan(c.Request.Context(), id, rd)
	if err != nil {
		lc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lc.loanView(*l))
}
