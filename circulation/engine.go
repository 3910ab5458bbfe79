// Package circulation is the single authority for loan and reservation state
// and for the Book.Available flag derived from it.
//
// Every state-changing operation runs in one database transaction. The book row
// is locked while its availability is checked, and the flag is flipped with an
// optimistic version check; a version conflict retries the whole operation once.
package circulation

import (
	"context"
	"errors"
	"time"

	"Gin_postgres_redis_library/cache"
	"Gin_postgres_redis_library/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultLoanDays        = 30
	DefaultReservationDays = 7

	maxAttempts = 2
)

type Engine struct {
	db              *gorm.DB
	cache           cache.BookCache
	log             *zap.Logger
	now             func() time.Time
	loanDays        int
	reservationDays int
}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLoanDays(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.loanDays = n
		}
	}
}

func WithReservationDays(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.reservationDays = n
		}
	}
}

// WithCache sets the catalog cache invalidated after availability or catalog changes.
func WithCache(c cache.BookCache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

func New(db *gorm.DB, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:              db,
		cache:           cache.NopCache{},
		log:             log,
		now:             time.Now,
		loanDays:        DefaultLoanDays,
		reservationDays: DefaultReservationDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Today is the current calendar day as stored in date columns.
func (e *Engine) Today() time.Time { return models.Date(e.now()) }

func (e *Engine) IsOverdue(l models.Loan) bool { return l.IsOverdue(e.now()) }

func (e *Engine) IsExpired(r models.Reservation) bool { return r.IsExpired(e.now()) }

// run executes fn in a transaction, retrying exactly once on ErrConcurrencyConflict.
// fn must be safe to re-run from scratch.
func (e *Engine) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = e.db.WithContext(ctx).Transaction(fn)
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) {
			break
		}
		e.log.Warn("concurrency conflict", zap.String("op", op), zap.Int("attempt", attempt))
	}
	return wrap(op, err)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		if ce.Op == "" {
			ce.Op = op
		}
		return ce
	}
	return &Error{Op: op, Kind: ErrStorage, Err: err}
}

func (e *Engine) invalidate(ctx context.Context) {
	if err := e.cache.Invalidate(ctx); err != nil {
		e.log.Warn("book cache invalidate failed", zap.Error(err))
	}
}

// --- row helpers, all called inside a transaction ---

func lockBook(tx *gorm.DB, id uint) (*models.Book, error) {
	var b models.Book
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(ErrBookNotFound, "book %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func lockLoan(tx *gorm.DB, id uint) (*models.Loan, error) {
	var l models.Loan
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(ErrLoanNotFound, "loan %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func lockReservation(tx *gorm.DB, id uint) (*models.Reservation, error) {
	var r models.Reservation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(ErrReservationNotFound, "reservation %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Row locks are always taken book first, then the loan or reservation row.
// The two helpers below read the book id without a lock, lock the book,
// then lock the row and check it still points at that book.

func lockLoanAndBook(tx *gorm.DB, id uint) (*models.Loan, *models.Book, error) {
	var peek models.Loan
	err := tx.Select("id", "book_id").First(&peek, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fail(ErrLoanNotFound, "loan %d does not exist", id)
	}
	if err != nil {
		return nil, nil, err
	}
	b, err := lockBook(tx, peek.BookID)
	if errors.Is(err, ErrBookNotFound) {
		return nil, nil, fail(ErrConcurrencyConflict, "book %d of loan %d was deleted concurrently", peek.BookID, id)
	}
	if err != nil {
		return nil, nil, err
	}
	l, err := lockLoan(tx, id)
	if err != nil {
		return nil, nil, err
	}
	if l.BookID != b.ID {
		return nil, nil, fail(ErrConcurrencyConflict, "loan %d changed concurrently", id)
	}
	return l, b, nil
}

func lockReservationAndBook(tx *gorm.DB, id uint) (*models.Reservation, *models.Book, error) {
	var peek models.Reservation
	err := tx.Select("id", "book_id").First(&peek, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fail(ErrReservationNotFound, "reservation %d does not exist", id)
	}
	if err != nil {
		return nil, nil, err
	}
	b, err := lockBook(tx, peek.BookID)
	if errors.Is(err, ErrBookNotFound) {
		return nil, nil, fail(ErrConcurrencyConflict, "book %d of reservation %d was deleted concurrently", peek.BookID, id)
	}
	if err != nil {
		return nil, nil, err
	}
	r, err := lockReservation(tx, id)
	if err != nil {
		return nil, nil, err
	}
	if r.BookID != b.ID {
		return nil, nil, fail(ErrConcurrencyConflict, "reservation %d changed concurrently", id)
	}
	return r, b, nil
}

// lockLoanForMove locks the loan's current book and the target book in
// ascending id order, then the loan row. from == to when nothing moves.
func lockLoanForMove(tx *gorm.DB, id, target uint) (l *models.Loan, from, to *models.Book, err error) {
	var peek models.Loan
	err = tx.Select("id", "book_id").First(&peek, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil, fail(ErrLoanNotFound, "loan %d does not exist", id)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if peek.BookID == target {
		l, b, err := lockLoanAndBook(tx, id)
		return l, b, b, err
	}

	ids := []uint{peek.BookID, target}
	if target < peek.BookID {
		ids[0], ids[1] = target, peek.BookID
	}
	locked := map[uint]*models.Book{}
	for _, bid := range ids {
		b, err := lockBook(tx, bid)
		if errors.Is(err, ErrBookNotFound) && bid == peek.BookID {
			return nil, nil, nil, fail(ErrConcurrencyConflict, "book %d of loan %d was deleted concurrently", bid, id)
		}
		if err != nil {
			return nil, nil, nil, err
		}
		locked[bid] = b
	}
	if l, err = lockLoan(tx, id); err != nil {
		return nil, nil, nil, err
	}
	if l.BookID != peek.BookID {
		return nil, nil, nil, fail(ErrConcurrencyConflict, "loan %d changed concurrently", id)
	}
	return l, locked[peek.BookID], locked[target], nil
}

// activeLoan returns the Active loan on the book, or nil.
func activeLoan(tx *gorm.DB, bookID uint) (*models.Loan, error) {
	var ls []models.Loan
	if err := tx.Where("book_id = ? AND status = ?", bookID, models.LoanActive).Limit(1).Find(&ls).Error; err != nil {
		return nil, err
	}
	if len(ls) == 0 {
		return nil, nil
	}
	return &ls[0], nil
}

// setAvailable flips the flag only if nobody bumped the version since b was read.
func setAvailable(tx *gorm.DB, b *models.Book, available bool) error {
	res := tx.Model(&models.Book{}).
		Where("id = ? AND version = ?", b.ID, b.Version).
		Updates(map[string]any{
			"available": available,
			"version":   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fail(ErrConcurrencyConflict, "book %d changed concurrently", b.ID)
	}
	b.Available = available
	b.Version++
	return nil
}

func dateOr(t *time.Time, def time.Time) time.Time {
	if t == nil || t.IsZero() {
		return def
	}
	return models.Date(*t)
}
