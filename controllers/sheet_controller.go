package controllers

import (
	"bytes"
	"net/http"

	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/sheets"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SheetController struct{ *Srv }

func NewSheetController(s *Srv) *SheetController { return &SheetController{Srv: s} }

// 概览数字
func (sc *SheetController) Stats(c *gin.Context) {
	st, err := sc.Repo.Stats(c.Request.Context(), sc.Engine.Today())
	if err != nil {
		sc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// multipart 字段 file，.xlsx 第一张表
func (sc *SheetController) ImportBooks(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "cannot read upload: %v", err)
		return
	}
	defer f.Close()

	res, err := sheets.ImportBooks(c.Request.Context(), f, sc.Engine)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}
	sc.Log.Info("books imported",
		zap.String("file", fh.Filename), zap.Int("imported", res.Imported), zap.Int("errors", len(res.Errors)))
	c.JSON(http.StatusOK, res)
}

func (sc *SheetController) ExportBooks(c *gin.Context) {
	books, err := sc.Repo.ListBooks(c.Request.Context(), "")
	if err != nil {
		sc.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := sheets.WriteBooks(&buf, books); err != nil {
		sc.respondError(c, err)
		return
	}
	sc.sendXLSX(c, "books.xlsx", buf.Bytes())
}

func (sc *SheetController) ExportLoans(c *gin.Context) {
	loans, err := sc.Repo.ListLoans(c.Request.Context(), db.LoanFilter{})
	if err != nil {
		sc.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := sheets.WriteLoans(&buf, loans, sc.Engine.Today()); err != nil {
		sc.respondError(c, err)
		return
	}
	sc.sendXLSX(c, "loans.xlsx", buf.Bytes())
}

func (sc *SheetController) sendXLSX(c *gin.Context, name string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}
