package circulation

import (
	"context"
	"strings"
	"testing"
	"time"

	"Gin_postgres_redis_library/cache"
	"Gin_postgres_redis_library/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CreateBook_ForcesAvailable(t *testing.T) {
	e, conn := newTestEngine(t)

	b, err := e.CreateBook(context.Background(), &models.Book{
		ID:        77,
		Title:     "  Ficciones ",
		Author:    "Jorge Luis Borges",
		Genre:     ptr("   "),
		ISBN:      ptr("978-0802130303"),
		Available: false,
	})

	require.NoError(t, err)
	assert.NotEqual(t, uint(77), b.ID)
	assert.Equal(t, "Ficciones", b.Title)
	assert.Nil(t, b.Genre)
	assert.True(t, b.Available)
	assert.True(t, reloadBook(t, conn, b.ID).Available)
}

func Test_CreateBook_Validation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateBook(ctx, &models.Book{Author: "Anónimo"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, Message(err), "title is required")

	_, err = e.CreateBook(ctx, &models.Book{Title: strings.Repeat("x", 201), Author: "A"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, Message(err), "title must be at most 200 characters")

	_, err = e.CreateBook(ctx, &models.Book{Title: "T", Author: "A", PublicationYear: ptr(3000)})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, Message(err), "publicationYear")
}

func Test_UpdateBook_KeepsAvailability(t *testing.T) {
	e, conn := newTestEngine(t)
	ctx := context.Background()
	b := addBook(t, e, "Cien Años de Soledad")
	_, err := e.IssueLoan(ctx, LoanRequest{BookID: b.ID, Borrower: "Ana"})
	require.NoError(t, err)

	out, err := e.UpdateBook(ctx, b.ID, &models.Book{
		Title:           "Cien años de soledad",
		Author:          "Gabriel García Márquez",
		PublicationYear: ptr(1967),
		Available:       true,
	})

	require.NoError(t, err)
	assert.Equal(t, "Cien años de soledad", out.Title)
	require.NotNil(t, out.PublicationYear)
	assert.Equal(t, 1967, *out.PublicationYear)
	assert.False(t, out.Available)
	assertAvailabilityConsistent(t, conn)

	_, err = e.UpdateBook(ctx, 999, &models.Book{Title: "T", Author: "A"})
	require.ErrorIs(t, err, ErrBookNotFound)
}

func Test_DeleteBook_RemovesLoansAndReservations(t *testing.T) {
	e, conn := newTestEngine(t)
	ctx := context.Background()
	b := addBook(t, e, "Rayuela")
	other := addBook(t, e, "Ficciones")
	_, err := e.IssueLoan(ctx, LoanRequest{BookID: b.ID, Borrower: "Ana"})
	require.NoError(t, err)
	_, err = e.PlaceReservation(ctx, ReservationRequest{BookID: b.ID, Borrower: "Luis"})
	require.NoError(t, err)
	_, err = e.IssueLoan(ctx, LoanRequest{BookID: other.ID, Borrower: "Eva"})
	require.NoError(t, err)

	require.NoError(t, e.DeleteBook(ctx, b.ID))

	var loans, reservations int64
	require.NoError(t, conn.Model(&models.Loan{}).Where("book_id = ?", b.ID).Count(&loans).Error)
	require.NoError(t, conn.Model(&models.Reservation{}).Where("book_id = ?", b.ID).Count(&reservations).Error)
	assert.Zero(t, loans)
	assert.Zero(t, reservations)
	assert.Equal(t, int64(1), countLoans(t, conn, other.ID, models.LoanActive))
	require.ErrorIs(t, e.DeleteBook(ctx, b.ID), ErrBookNotFound)
}

func Test_Reconcile(t *testing.T) {
	e, conn := newTestEngine(t)
	ctx := context.Background()
	lent := addBook(t, e, "Nada")
	free := addBook(t, e, "Niebla")
	ok := addBook(t, e, "Marianela")
	_, err := e.IssueLoan(ctx, LoanRequest{BookID: lent.ID, Borrower: "Ana"})
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.Book{}).Where("id = ?", lent.ID).Update("available", true).Error)
	require.NoError(t, conn.Model(&models.Book{}).Where("id = ?", free.ID).Update("available", false).Error)

	fixed, err := e.Reconcile(ctx)

	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{lent.ID, free.ID}, fixed)
	assert.NotContains(t, fixed, ok.ID)
	assertAvailabilityConsistent(t, conn)

	fixed, err = e.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, fixed)
}

func Test_Engine_InvalidatesBookCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	bc := cache.NewRedisBookCache(rdb, 0)

	conn := newTestDB(t)
	e := New(conn, nil, WithClock(func() time.Time { return testNow }), WithCache(bc))
	ctx := context.Background()
	b := addBook(t, e, "El Aleph")

	require.NoError(t, bc.SetList(ctx, 0, "", []models.Book{*b}))
	_, _, hit, err := bc.GetList(ctx, "")
	require.NoError(t, err)
	require.True(t, hit)

	_, err = e.IssueLoan(ctx, LoanRequest{BookID: b.ID, Borrower: "Ana"})
	require.NoError(t, err)

	_, _, hit, err = bc.GetList(ctx, "")
	require.NoError(t, err)
	assert.False(t, hit, "issuing a loan must drop cached book lists")
}
