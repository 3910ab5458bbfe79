package circulation

import (
	"context"
	"errors"
	"strings"

	"Gin_postgres_redis_library/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// editable catalog columns; available/version belong to the engine
var bookColumns = []string{"title", "author", "isbn", "genre", "publication_year", "description", "cover_image"}

func normalizeBook(b *models.Book) {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	for _, p := range []**string{&b.ISBN, &b.Genre, &b.Description, &b.CoverImage} {
		if *p == nil {
			continue
		}
		if s := strings.TrimSpace(**p); s != "" {
			*p = &s
		} else {
			*p = nil
		}
	}
}

// CreateBook adds a catalog entry. New books are always available.
func (e *Engine) CreateBook(ctx context.Context, in *models.Book) (*models.Book, error) {
	const op = "create book"
	b := *in
	normalizeBook(&b)
	if err := check(b); err != nil {
		return nil, wrap(op, err)
	}
	b.ID = 0
	b.Available = true
	b.Version = 0

	if err := e.run(ctx, op, func(tx *gorm.DB) error { return tx.Create(&b).Error }); err != nil {
		return nil, err
	}
	e.log.Info("book created", zap.Uint("book_id", b.ID), zap.String("title", b.Title))
	e.invalidate(ctx)
	return &b, nil
}

// UpdateBook edits catalog fields. Availability is not editable.
func (e *Engine) UpdateBook(ctx context.Context, id uint, in *models.Book) (*models.Book, error) {
	const op = "update book"
	b := *in
	normalizeBook(&b)
	if err := check(b); err != nil {
		return nil, wrap(op, err)
	}

	var out models.Book
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		cur, err := lockBook(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Model(cur).Select(bookColumns).Updates(&b).Error; err != nil {
			return err
		}
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("book updated", zap.Uint("book_id", id))
	e.invalidate(ctx)
	return &out, nil
}

// DeleteBook removes a book together with all of its loans and reservations.
func (e *Engine) DeleteBook(ctx context.Context, id uint) error {
	const op = "delete book"
	var loans, reservations int64
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		if _, err := lockBook(tx, id); err != nil {
			return err
		}
		// 外键已设 CASCADE，这里显式删除保证各数据库行为一致
		res := tx.Where("book_id = ?", id).Delete(&models.Loan{})
		if res.Error != nil {
			return res.Error
		}
		loans = res.RowsAffected
		res = tx.Where("book_id = ?", id).Delete(&models.Reservation{})
		if res.Error != nil {
			return res.Error
		}
		reservations = res.RowsAffected
		return tx.Delete(&models.Book{}, id).Error
	})
	if err != nil {
		return err
	}
	e.log.Info("book deleted",
		zap.Uint("book_id", id), zap.Int64("loans", loans), zap.Int64("reservations", reservations))
	e.invalidate(ctx)
	return nil
}

// Reconcile recomputes Book.Available from active-loan existence and returns
// the ids of books whose stored flag was wrong.
func (e *Engine) Reconcile(ctx context.Context) ([]uint, error) {
	const op = "reconcile availability"
	var fixed []uint
	err := e.run(ctx, op, func(tx *gorm.DB) error {
		fixed = fixed[:0]
		var lent []uint
		if err := tx.Model(&models.Loan{}).
			Where("status = ?", models.LoanActive).
			Distinct().Pluck("book_id", &lent).Error; err != nil {
			return err
		}
		onLoan := make(map[uint]bool, len(lent))
		for _, id := range lent {
			onLoan[id] = true
		}

		var books []models.Book
		if err := tx.Order("id").Find(&books).Error; err != nil {
			return err
		}
		for i := range books {
			b := &books[i]
			want := !onLoan[b.ID]
			if b.Available == want {
				continue
			}
			if err := setAvailable(tx, b, want); err != nil {
				return err
			}
			fixed = append(fixed, b.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(fixed) > 0 {
		e.log.Warn("availability corrected", zap.Uints("book_ids", fixed))
		e.invalidate(ctx)
	}
	return fixed, nil
}

// IsNotFound reports whether err is any of the not-found kinds or gorm's ErrRecordNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
