package circulation

import (
	"context"
	"errors"
	"strings"
	"time"

	"Gin_postgres_redis_library/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LoanRequest struct {
	BookID   uint       `json:"bookId" validate:"required"`
	Borrower string     `json:"borrower" validate:"required,max=100"`
	LoanDate *time.Time `json:"loanDate"` // 默认今天
	DueDate  *time.Time `json:"dueDate"`  // 默认今天 + loanDays
	Notes    string     `json:"notes"`
}

// LoanEdit changes descriptive fields and the book; nil fields are left untouched.
type LoanEdit struct {
	BookID   *uint      `json:"bookId"` // 换书：借出中的借阅要求目标书可借
	Borrower *string    `json:"borrower" validate:"omitempty,max=100"`
	LoanDate *time.Time `json:"loanDate"`
	DueDate  *time.Time `json:"dueDate"`
	Notes    *string    `json:"notes"`
}

// IssueLoan opens an Active loan and marks the book unavailable.
func (e *Engine) IssueLoan(ctx context.Context, req LoanRequest) (*models.Loan, error) {
	const op = "issue loan"
	req.Borrower = strings.TrimSpace(req.Borrower)
	if err := check(req); err != nil {
		return nil, wrap(op, err)
	}
	today := e.Today()
	loanDate := dateOr(req.LoanDate, today)
	dueDate := dateOr(req.DueDate, today.AddDate(0, 0, e.loanDays))
	if dueDate.Before(loanDate) {
		return nil, wrap(op, fail(ErrValidation, "dueDate must not be before loanDate"))
	}

	var loan *models.Loan
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		b, err := lockBook(tx, req.BookID)
		if err != nil {
			return err
		}
		if !b.Available {
			return fail(ErrBookUnavailable, "%q is currently on loan", b.Title)
		}
		l, err := e.openLoan(tx, b, req.Borrower, loanDate, dueDate, req.Notes)
		if err != nil {
			return err
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("loan issued",
		zap.Uint("loan_id", loan.ID), zap.Uint("book_id", loan.BookID), zap.String("borrower", loan.Borrower))
	e.invalidate(ctx)
	return loan, nil
}

// openLoan creates the Active loan and flips availability; b must be locked and available.
func (e *Engine) openLoan(tx *gorm.DB, b *models.Book, borrower string, loanDate, dueDate time.Time, notes string) (*models.Loan, error) {
	// 标志位与实际借阅不一致时，以借阅记录为准
	cur, err := activeLoan(tx, b.ID)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		if cur.Borrower == borrower {
			return nil, fail(ErrDuplicateLoan, "%s already has %q on loan", borrower, b.Title)
		}
		return nil, fail(ErrBookUnavailable, "%q is currently on loan", b.Title)
	}

	l := &models.Loan{
		BookID:   b.ID,
		Borrower: borrower,
		LoanDate: loanDate,
		DueDate:  dueDate,
		Status:   models.LoanActive,
		Notes:    notes,
	}
	if err := tx.Create(l).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fail(ErrConcurrencyConflict, "another loan was opened on book %d", b.ID)
		}
		return nil, err
	}
	if err := setAvailable(tx, b, false); err != nil {
		return nil, err
	}
	l.Book = b
	return l, nil
}

// ReturnLoan closes an Active loan. The due date becomes the return date
// (today when returnDate is nil) and the book becomes available.
func (e *Engine) ReturnLoan(ctx context.Context, loanID uint, returnDate *time.Time) (*models.Loan, error) {
	const op = "return loan"
	rd := dateOr(returnDate, e.Today())

	var loan *models.Loan
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		l, b, err := lockLoanAndBook(tx, loanID)
		if err != nil {
			return err
		}
		if l.Status != models.LoanActive {
			return fail(ErrInvalidState, "loan %d is %s; only active loans can be returned", l.ID, l.Status)
		}
		if rd.Before(models.Date(l.LoanDate)) {
			return fail(ErrValidation, "returnDate must not be before loanDate")
		}

		res := tx.Model(&models.Loan{}).
			Where("id = ? AND status = ?", l.ID, models.LoanActive).
			Updates(map[string]any{"status": models.LoanReturned, "due_date": rd})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fail(ErrConcurrencyConflict, "loan %d changed concurrently", l.ID)
		}
		if err := setAvailable(tx, b, true); err != nil {
			return err
		}
		l.Status = models.LoanReturned
		l.DueDate = rd
		l.Book = b
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("loan returned", zap.Uint("loan_id", loan.ID), zap.Uint("book_id", loan.BookID))
	e.invalidate(ctx)
	return loan, nil
}

// UpdateLoan edits book, borrower, dates and notes. Status is never edited here.
// Moving an Active loan frees the old book and takes the new one.
func (e *Engine) UpdateLoan(ctx context.Context, loanID uint, edit LoanEdit) (*models.Loan, error) {
	const op = "update loan"
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

	var loan *models.Loan
	var movedActive bool
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		movedActive = false
		var (
			l        *models.Loan
			from, to *models.Book
			err      error
		)
		if edit.BookID != nil {
			l, from, to, err = lockLoanForMove(tx, loanID, *edit.BookID)
		} else {
			l, err = lockLoan(tx, loanID)
		}
		if err != nil {
			return err
		}
		upd := map[string]any{}
		if to != nil && to.ID != from.ID {
			if l.Status == models.LoanActive {
				if err := moveActiveLoan(tx, from, to); err != nil {
					return err
				}
				movedActive = true
			}
			upd["book_id"] = to.ID
			l.BookID = to.ID
			l.Book = to
		}
		if edit.Borrower != nil {
			upd["borrower"] = *edit.Borrower
			l.Borrower = *edit.Borrower
		}
		if edit.LoanDate != nil {
			l.LoanDate = models.Date(*edit.LoanDate)
			upd["loan_date"] = l.LoanDate
		}
		if edit.DueDate != nil {
			l.DueDate = models.Date(*edit.DueDate)
			upd["due_date"] = l.DueDate
		}
		if edit.Notes != nil {
			upd["notes"] = *edit.Notes
			l.Notes = *edit.Notes
		}
		if models.Date(l.DueDate).Before(models.Date(l.LoanDate)) {
			return fail(ErrValidation, "dueDate must not be before loanDate")
		}
		if len(upd) > 0 {
			if err := tx.Model(&models.Loan{}).Where("id = ?", l.ID).Updates(upd).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fail(ErrConcurrencyConflict, "another loan was opened on book %d", l.BookID)
				}
				return err
			}
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("loan updated", zap.Uint("loan_id", loan.ID), zap.Uint("book_id", loan.BookID))
	if movedActive {
		e.invalidate(ctx)
	}
	return loan, nil
}

// moveActiveLoan hands availability over from one locked book to another.
func moveActiveLoan(tx *gorm.DB, from, to *models.Book) error {
	cur, err := activeLoan(tx, to.ID)
	if err != nil {
		return err
	}
	if cur != nil || !to.Available {
		return fail(ErrBookUnavailable, "%q is currently on loan", to.Title)
	}
	if err := setAvailable(tx, from, true); err != nil {
		return err
	}
	return setAvailable(tx, to, false)
}

// DeleteLoan removes a loan. Deleting an Active loan makes the book available again.
func (e *Engine) DeleteLoan(ctx context.Context, loanID uint) error {
	const op = "delete loan"
	var wasActive bool
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		l, b, err := lockLoanAndBook(tx, loanID)
		if err != nil {
			return err
		}
		wasActive = l.Status == models.LoanActive
		if wasActive {
			if err := setAvailable(tx, b, true); err != nil {
				return err
			}
		}
		return tx.Delete(&models.Loan{}, l.ID).Error
	})
	if err != nil {
		return err
	}

	e.log.Info("loan deleted", zap.Uint("loan_id", loanID), zap.Bool("was_active", wasActive))
	if wasActive {
		e.invalidate(ctx)
	}
	return nil
}
