package circulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Gin_postgres_redis_library/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReservationRequest struct {
	BookID     uint       `json:"bookId" validate:"required"`
	Borrower   string     `json:"borrower" validate:"required,max=100"`
	ReservedOn *time.Time `json:"reservedOn"` // 默认今天
	ExpiresOn  *time.Time `json:"expiresOn"`  // 默认今天 + reservationDays
	Notes      string     `json:"notes"`
}

type ReservationEdit struct {
	BookID     *uint      `json:"bookId"`
	Borrower   *string    `json:"borrower" validate:"omitempty,max=100"`
	ReservedOn *time.Time `json:"reservedOn"`
	ExpiresOn  *time.Time `json:"expiresOn"`
	Notes      *string    `json:"notes"`
}

// PlaceReservation puts a hold on a book. The book does not need to be available.
func (e *Engine) PlaceReservation(ctx context.Context, req ReservationRequest) (*models.Reservation, error) {
	const op = "place reservation"
	req.Borrower = strings.TrimSpace(req.Borrower)
	if err := check(req); err != nil {
		return nil, wrap(op, err)
	}
	today := e.Today()
	reservedOn := dateOr(req.ReservedOn, today)
	expiresOn := dateOr(req.ExpiresOn, today.AddDate(0, 0, e.reservationDays))
	if expiresOn.Before(reservedOn) {
		return nil, wrap(op, fail(ErrValidation, "expiresOn must not be before reservedOn"))
	}

	var out *models.Reservation
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		var b models.Book
		if err := tx.First(&b, "id = ?", req.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fail(ErrBookNotFound, "book %d does not exist", req.BookID)
			}
			return err
		}
		if err := ensureNoActiveReservation(tx, &b, req.Borrower, 0); err != nil {
			return err
		}
		r := &models.Reservation{
			BookID:     b.ID,
			Borrower:   req.Borrower,
			ReservedOn: reservedOn,
			ExpiresOn:  expiresOn,
			Status:     models.ReservationActive,
			Notes:      req.Notes,
		}
		if err := tx.Create(r).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fail(ErrDuplicateReservation, "%s already has an active reservation for %q", req.Borrower, b.Title)
			}
			return err
		}
		r.Book = &b
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("reservation placed",
		zap.Uint("reservation_id", out.ID), zap.Uint("book_id", out.BookID), zap.String("borrower", out.Borrower))
	return out, nil
}

// ensureNoActiveReservation fails with ErrDuplicateReservation when borrower
// already holds an Active reservation on b other than exceptID.
func ensureNoActiveReservation(tx *gorm.DB, b *models.Book, borrower string, exceptID uint) error {
	var n int64
	q := tx.Model(&models.Reservation{}).
		Where("book_id = ? AND borrower = ? AND status = ?", b.ID, borrower, models.ReservationActive)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fail(ErrDuplicateReservation, "%s already has an active reservation for %q", borrower, b.Title)
	}
	return nil
}

// ConvertReservation turns an Active reservation into a new Active loan for the
// same borrower. Loan, reservation and book change together or not at all.
func (e *Engine) ConvertReservation(ctx context.Context, reservationID uint) (*models.Loan, error) {
	const op = "convert reservation"
	today := e.Today()

	var loan *models.Loan
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		r, b, err := lockReservationAndBook(tx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != models.ReservationActive {
			return fail(ErrInvalidState, "reservation %d is %s; only active reservations can be converted", r.ID, r.Status)
		}
		if !b.Available {
			return fail(ErrBookUnavailable, "%q is currently on loan", b.Title)
		}

		l, err := e.openLoan(tx, b, r.Borrower, today, today.AddDate(0, 0, e.loanDays),
			fmt.Sprintf("Converted from reservation #%d", r.ID))
		if err != nil {
			return err
		}
		res := tx.Model(&models.Reservation{}).
			Where("id = ? AND status = ?", r.ID, models.ReservationActive).
			Update("status", models.ReservationConverted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fail(ErrConcurrencyConflict, "reservation %d changed concurrently", r.ID)
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("reservation converted",
		zap.Uint("reservation_id", reservationID), zap.Uint("loan_id", loan.ID), zap.Uint("book_id", loan.BookID))
	e.invalidate(ctx)
	return loan, nil
}

// CancelReservation moves an Active reservation to Cancelled. The book is not touched.
func (e *Engine) CancelReservation(ctx context.Context, reservationID uint) (*models.Reservation, error) {
	const op = "cancel reservation"
	var out *models.Reservation
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		r, err := lockReservation(tx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != models.ReservationActive {
			return fail(ErrInvalidState, "reservation %d is %s; only active reservations can be cancelled", r.ID, r.Status)
		}
		res := tx.Model(&models.Reservation{}).
			Where("id = ? AND status = ?", r.ID, models.ReservationActive).
			Update("status", models.ReservationCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fail(ErrConcurrencyConflict, "reservation %d changed concurrently", r.ID)
		}
		r.Status = models.ReservationCancelled
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("reservation cancelled", zap.Uint("reservation_id", out.ID))
	return out, nil
}

// UpdateReservation edits book, borrower, dates and notes of a reservation.
func (e *Engine) UpdateReservation(ctx context.Context, reservationID uint, edit ReservationEdit) (*models.Reservation, error) {
	const op = "update reservation"
	if edit.BookID != nil && *edit.BookID == 0 {
		return nil, wrap(op, fail(ErrValidation, "bookId must be a positive integer"))
	}
	if edit.Borrower != nil {
		s := strings.TrimSpace(*edit.Borrower)
		if s == "" {
			return nil, wrap(op, fail(ErrValidation, "borrower is required"))
		}
		edit.Borrower = &s
	}
	if err := check(edit); err != nil {
		return nil, wrap(op, err)
	}

	var out *models.Reservation
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		// 先锁目标书再锁预约
		var target *models.Book
		if edit.BookID != nil {
			b, err := lockBook(tx, *edit.BookID)
			if err != nil {
				return err
			}
			target = b
		}
		r, err := lockReservation(tx, reservationID)
		if err != nil {
			return err
		}
		upd := map[string]any{}
		borrower := r.Borrower
		if edit.Borrower != nil {
			borrower = *edit.Borrower
		}
		moved := target != nil && target.ID != r.BookID
		if r.Status == models.ReservationActive && (moved || borrower != r.Borrower) {
			b := target
			if b == nil {
				b = &models.Book{}
				if err := tx.First(b, "id = ?", r.BookID).Error; err != nil {
					return err
				}
			}
			if err := ensureNoActiveReservation(tx, b, borrower, r.ID); err != nil {
				return err
			}
		}
		if borrower != r.Borrower {
			upd["borrower"] = borrower
			r.Borrower = borrower
		}
		if moved {
			upd["book_id"] = target.ID
			r.BookID = target.ID
			r.Book = target
		}
		if edit.ReservedOn != nil {
			r.ReservedOn = models.Date(*edit.ReservedOn)
			upd["reserved_on"] = r.ReservedOn
		}
		if edit.ExpiresOn != nil {
			r.ExpiresOn = models.Date(*edit.ExpiresOn)
			upd["expires_on"] = r.ExpiresOn
		}
		if edit.Notes != nil {
			r.Notes = *edit.Notes
			upd["notes"] = *edit.Notes
		}
		if models.Date(r.ExpiresOn).Before(models.Date(r.ReservedOn)) {
			return fail(ErrValidation, "expiresOn must not be before reservedOn")
		}
		if len(upd) == 0 {
			out = r
			return nil
		}
		if err := tx.Model(&models.Reservation{}).Where("id = ?", r.ID).Updates(upd).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fail(ErrDuplicateReservation, "%s already has an active reservation for book %d", r.Borrower, r.BookID)
			}
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("reservation updated", zap.Uint("reservation_id", out.ID))
	return out, nil
}

// DeleteReservation removes a reservation of any status. Availability is unaffected.
func (e *Engine) DeleteReservation(ctx context.Context, reservationID uint) error {
	const op = "delete reservation"
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		res := tx.Delete(&models.Reservation{}, reservationID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fail(ErrReservationNotFound, "reservation %d does not exist", reservationID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("reservation deleted", zap.Uint("reservation_id", reservationID))
	return nil
}
