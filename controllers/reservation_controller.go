package controllers

import (
	"net/http"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/circulation"
	"Gin_postgres_redis_library/db"

	"github.com/gin-gonic/gin"
)

type ReservationController struct{ *Srv }

func NewReservationController(s *Srv) *ReservationController {
	return &ReservationController{Srv: s}
}

type reservationInput struct {
	BookID     uint    `json:"bookId"`
	Borrower   string  `json:"borrower"`
	ReservedOn *string `json:"reservedOn"`
	ExpiresOn  *string `json:"expiresOn"`
	Notes      string  `json:"notes"`
}

func (in reservationInput) request() (circulation.ReservationRequest, error) {
	req := circulation.ReservationRequest{BookID: in.BookID, Borrower: in.Borrower, Notes: in.Notes}
	var err error
	if req.ReservedOn, err = parseDay("reservedOn", in.ReservedOn); err != nil {
		return req, err
	}
	if req.ExpiresOn, err = parseDay("expiresOn", in.ExpiresOn); err != nil {
		return req, err
	}
	return req, nil
}

type reservationEditInput struct {
	BookID     *uint   `json:"bookId"`
	Borrower   *string `json:"borrower"`
	ReservedOn *string `json:"reservedOn"`
	ExpiresOn  *string `json:"expiresOn"`
	Notes      *string `json:"notes"`
}

func (in reservationEditInput) edit() (circulation.ReservationEdit, error) {
	e := circulation.ReservationEdit{BookID: in.BookID, Borrower: in.Borrower, Notes: in.Notes}
	var err error
	if e.ReservedOn, err = parseDay("reservedOn", in.ReservedOn); err != nil {
		return e, err
	}
	if e.ExpiresOn, err = parseDay("expiresOn", in.ExpiresOn); err != nil {
		return e, err
	}
	return e, nil
}

// 预约列表 ?status=active|cancelled|converted|expired&bookId=&borrower=
func (rc *ReservationController) ListReservations(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", "active", "cancelled", "converted", "expired":
	default:
		badRequest(c, "invalid status %q", status)
		return
	}
	bookID, ok := queryID(c, "bookId")
	if !ok {
		return
	}
	out, err := rc.Repo.ListReservations(c.Request.Context(), db.ReservationFilter{
		Status:   status,
		BookID:   bookID,
		Borrower: c.Query("borrower"),
		Today:    rc.Engine.Today(),
	})
	if err != nil {
		rc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"reservations": rc.reservationViews(out)})
}

func (rc *ReservationController) GetReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := rc.Repo.GetReservation(c.Request.Context(), id)
	if err != nil {
		rc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rc.reservationView(*r))
}

func (rc *ReservationController) CreateReservation(c *gin.Context) {
	var in reservationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}
	req, err := in.request()
	if err != nil {
		rc.respondError(c, err)
		return
	}
	r, err := rc.Engine.PlaceReservation(c.Request.Context(), req)
	if err != nil {
		rc.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rc.reservationView(*r))
}

func (rc *ReservationController) UpdateReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in reservationEditInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid body: %v", err)
		return
	}
	edit, err := in.edit()
	if err != nil {
		rc.respondError(c, err)
		return
	}
	r, err := rc.Engine.UpdateReservation(c.Request.Context(), id, edit)
	if err != nil {
		rc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rc.reservationView(*r))
}

func (rc *ReservationController) DeleteReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := rc.Engine.DeleteReservation(c.Request.Context(), id); err != nil {
		rc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// 预约转借阅：书必须在架
func (rc *ReservationController) ConvertReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	l, err := rc.Engine.ConvertReservation(c.Request.Context(), id)
	if err != nil {
		rc.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rc.loanView(*l))
}

func (rc *ReservationController) CancelReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := rc.Engine.CancelReservation(c.Request.Context(), id)
	if err != nil {
		rc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rc.reservationView(*r))
}
