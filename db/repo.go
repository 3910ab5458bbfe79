package db

import (
	"context"
	"strings"
	"time"

	"Gin_postgres_redis_library/cache"
	"Gin_postgres_redis_library/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repo 只读查询；所有状态变更走 circulation.Engine
type Repo struct {
	DB    *gorm.DB
	Cache cache.BookCache
	Log   *zap.Logger
}

func NewRepo(db *gorm.DB, c cache.BookCache, log *zap.Logger) *Repo {
	if c == nil {
		c = cache.NopCache{}
	}
	return &Repo{DB: db, Cache: c, Log: log}
}

// Books

func (r *Repo) GetBook(ctx context.Context, id uint) (*models.Book, error) {
	var b models.Book
	if err := r.DB.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBooks 按标题排序；q 模糊匹配标题/作者（不区分大小写）
func (r *Repo) ListBooks(ctx context.Context, q string) ([]models.Book, error) {
	q = strings.TrimSpace(q)
	books, gen, hit, cerr := r.Cache.GetList(ctx, q)
	if cerr != nil {
		r.Log.Warn("book cache read failed", zap.Error(cerr))
	} else if hit {
		return books, nil
	}

	tx := r.DB.WithContext(ctx).Model(&models.Book{})
	if q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", like, like)
	}
	books = []models.Book{}
	if err := tx.Order("title ASC").Find(&books).Error; err != nil {
		return nil, err
	}

	// 代数未知时不回填
	if cerr != nil {
		return books, nil
	}
	if err := r.Cache.SetList(ctx, gen, q, books); err != nil {
		r.Log.Warn("book cache write failed", zap.Error(err))
	}
	return books, nil
}

// AvailableBooks 可发起新借阅的书
func (r *Repo) AvailableBooks(ctx context.Context) ([]models.Book, error) {
	books := []models.Book{}
	err := r.DB.WithContext(ctx).
		Where("available = ?", true).
		Order("title ASC").
		Find(&books).Error
	return books, err
}

// Loans

type LoanFilter struct {
	Status   string // "", "active", "returned", "overdue"
	BookID   uint
	Borrower string
	Today    time.Time
}

func (r *Repo) GetLoan(ctx context.Context, id uint) (*models.Loan, error) {
	var l models.Loan
	if err := r.DB.WithContext(ctx).Preload("Book").First(&l, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLoans 借阅历史，按借出日期倒序
func (r *Repo) ListLoans(ctx context.Context, f LoanFilter) ([]models.Loan, error) {
	q := r.DB.WithContext(ctx).Model(&models.Loan{}).Preload("Book").Order("loan_date DESC, id DESC")
	if f.BookID != 0 {
		q = q.Where("book_id = ?", f.BookID)
	}
	if s := strings.TrimSpace(f.Borrower); s != "" {
		q = q.Where("borrower = ?", s)
	}
	switch f.Status {
	case "active", "overdue":
		q = q.Where("status = ?", models.LoanActive)
	case "returned":
		q = q.Where("status = ?", models.LoanReturned)
	}

	loans := []models.Loan{}
	if err := q.Find(&loans).Error; err != nil {
		return nil, err
	}
	if f.Status != "overdue" {
		return loans, nil
	}
	// 逾期是读时计算，不落库
	overdue := loans[:0]
	for _, l := range loans {
		if l.IsOverdue(f.Today) {
			overdue = append(overdue, l)
		}
	}
	return overdue, nil
}

// Reservations

type ReservationFilter struct {
	Status   string // "", "active", "cancelled", "converted", "expired"
	BookID   uint
	Borrower string
	Today    time.Time
}

func (r *Repo) GetReservation(ctx context.Context, id uint) (*models.Reservation, error) {
	var res models.Reservation
	if err := r.DB.WithContext(ctx).Preload("Book").First(&res, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// ListReservations 按预约日期倒序
func (r *Repo) ListReservations(ctx context.Context, f ReservationFilter) ([]models.Reservation, error) {
	q := r.DB.WithContext(ctx).Model(&models.Reservation{}).Preload("Book").Order("reserved_on DESC, id DESC")
	if f.BookID != 0 {
		q = q.Where("book_id = ?", f.BookID)
	}
	if s := strings.TrimSpace(f.Borrower); s != "" {
		q = q.Where("borrower = ?", s)
	}
	switch f.Status {
	case "active", "expired":
		q = q.Where("status = ?", models.ReservationActive)
	case "cancelled":
		q = q.Where("status = ?", models.ReservationCancelled)
	case "converted":
		q = q.Where("status = ?", models.ReservationConverted)
	}

	out := []models.Reservation{}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	if f.Status != "expired" {
		return out, nil
	}
	expired := out[:0]
	for _, res := range out {
		if res.IsExpired(f.Today) {
			expired = append(expired, res)
		}
	}
	return expired, nil
}

// Stats

type Stats struct {
	Books               int64 `json:"books"`
	AvailableBooks      int64 `json:"availableBooks"`
	ActiveLoans         int64 `json:"activeLoans"`
	OverdueLoans        int64 `json:"overdueLoans"`
	ActiveReservations  int64 `json:"activeReservations"`
	ExpiredReservations int64 `json:"expiredReservations"`
}

func (r *Repo) Stats(ctx context.Context, today time.Time) (Stats, error) {
	var s Stats
	db := r.DB.WithContext(ctx)
	if err := db.Model(&models.Book{}).Count(&s.Books).Error; err != nil {
		return s, err
	}
	if err := db.Model(&models.Book{}).Where("available = ?", true).Count(&s.AvailableBooks).Error; err != nil {
		return s, err
	}

	overdue, err := r.ListLoans(ctx, LoanFilter{Status: "overdue", Today: today})
	if err != nil {
		return s, err
	}
	s.OverdueLoans = int64(len(overdue))
	if err := db.Model(&models.Loan{}).Where("status = ?", models.LoanActive).Count(&s.ActiveLoans).Error; err != nil {
		return s, err
	}

	expired, err := r.ListReservations(ctx, ReservationFilter{Status: "expired", Today: today})
	if err != nil {
		return s, err
	}
	s.ExpiredReservations = int64(len(expired))
	if err := db.Model(&models.Reservation{}).Where("status = ?", models.ReservationActive).Count(&s.ActiveReservations).Error; err != nil {
		return s, err
	}
	return s, nil
}
