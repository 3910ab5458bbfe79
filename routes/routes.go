package routes

import (
	"net/http"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	bookCtl := controllers.NewBookController(s)
	loanCtl := controllers.NewLoanController(s)
	resCtl := controllers.NewReservationController(s)
	sheetCtl := controllers.NewSheetController(s)

	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })

	api := r.Group("/api")
	api.GET("/stats", sheetCtl.Stats)

	// ------------------------------
	// 图书目录
	// ------------------------------
	books := api.Group("/books")
	{
		books.GET("", bookCtl.ListBooks) // ?q=
		books.GET("/available", bookCtl.AvailableBooks)
		books.GET("/:id", bookCtl.GetBook)
		books.POST("", bookCtl.CreateBook)
		books.PUT("/:id", bookCtl.UpdateBook)
		books.DELETE("/:id", bookCtl.DeleteBook)

		books.POST("/:id/loans", bookCtl.QuickLoan)
		books.POST("/:id/reservations", bookCtl.QuickReservation)
		books.POST("/reconcile", bookCtl.Reconcile)
	}

	// ------------------------------
	// 借阅
	// ------------------------------
	loans := api.Group("/loans")
	{
		loans.GET("", loanCtl.ListLoans) // ?status=active|returned|overdue&bookId=&borrower=
		loans.GET("/:id", loanCtl.GetLoan)
		loans.POST("", loanCtl.CreateLoan)
		loans.PUT("/:id", loanCtl.UpdateLoan)
		loans.DELETE("/:id", loanCtl.DeleteLoan)
		loans.POST("/:id/return", loanCtl.ReturnLoan)
	}

	// ------------------------------
	// 预约
	// ------------------------------
	res := api.Group("/reservations")
	{
		res.GET("", resCtl.ListReservations) // ?status=active|cancelled|converted|expired
		res.GET("/:id", resCtl.GetReservation)
		res.POST("", resCtl.CreateReservation)
		res.PUT("/:id", resCtl.UpdateReservation)
		res.DELETE("/:id", resCtl.DeleteReservation)
		res.POST("/:id/convert", resCtl.ConvertReservation)
		res.POST("/:id/cancel", resCtl.CancelReservation)
	}

	// ------------------------------
	// Excel 导入导出
	// ------------------------------
	api.POST("/import/books", sheetCtl.ImportBooks)
	api.GET("/export/books.xlsx", sheetCtl.ExportBooks)
	api.GET("/export/loans.xlsx", sheetCtl.ExportLoans)
}
