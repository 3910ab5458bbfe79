package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/config"
	"Gin_postgres_redis_library/db"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := db.Open(sqlite.Open(db.SQLiteDSN(filepath.Join(t.TempDir(), "api.db"))), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := config.Config{Env: "test", WebOrigins: []string{"http://localhost:5173"}, LoanDays: 14, ReservationDays: 7}
	a := app.New(cfg, conn, nil, zap.NewNop())
	RegisterRoutes(a.Router, a)
	return a.Router
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createBook(t *testing.T, r http.Handler, title string) uint {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/books", map[string]any{"title": title, "author": "Autor"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return uint(decode(t, w)["id"].(float64))
}

func Test_Healthz_AndRequestID(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(app.RequestIDHeader))
}

func Test_LoanLifecycle(t *testing.T) {
	r := newTestRouter(t)
	bookID := createBook(t, r, "Cien Años de Soledad")

	w := do(t, r, http.MethodPost, "/api/loans", map[string]any{"bookId": bookID, "borrower": "Ana"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode(t, w)
	assert.Equal(t, "Active", loan["status"])
	assert.Equal(t, false, loan["overdue"])
	loanID := uint(loan["id"].(float64))

	w = do(t, r, http.MethodGet, fmt.Sprintf("/api/books/%d", bookID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	assert.Equal(t, false, detail["book"].(map[string]any)["available"])
	assert.Len(t, detail["loans"], 1)

	w = do(t, r, http.MethodPost, fmt.Sprintf("/api/loans/%d/return", loanID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Returned", decode(t, w)["status"])

	w = do(t, r, http.MethodPost, fmt.Sprintf("/api/loans/%d/return", loanID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", decode(t, w)["kind"])

	w = do(t, r, http.MethodGet, "/api/books/available", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["books"], 1)
}

func Test_IssueLoan_Conflict(t *testing.T) {
	r := newTestRouter(t)
	bookID := createBook(t, r, "Rayuela")

	w := do(t, r, http.MethodPost, fmt.Sprintf("/api/books/%d/loans", bookID), map[string]any{"borrower": "Ana"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, fmt.Sprintf("/api/books/%d/loans", bookID), map[string]any{"borrower": "Luis"})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "book_unavailable", body["kind"])
	assert.Contains(t, body["error"], "Rayuela")
}

func Test_ConvertReservation_WhenBookOnLoan(t *testing.T) {
	r := newTestRouter(t)
	bookID := createBook(t, r, "Pedro Páramo")
	w := do(t, r, http.MethodPost, "/api/loans", map[string]any{"bookId": bookID, "borrower": "Ana"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, r, http.MethodPost, "/api/reservations", map[string]any{"bookId": bookID, "borrower": "Luis"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resID := uint(decode(t, w)["id"].(float64))

	w = do(t, r, http.MethodPost, fmt.Sprintf("/api/reservations/%d/convert", resID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "book_unavailable", decode(t, w)["kind"])

	w = do(t, r, http.MethodGet, fmt.Sprintf("/api/reservations/%d", resID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Active", decode(t, w)["status"])
}

func Test_UpdateLoan_ChangesBook(t *testing.T) {
	r := newTestRouter(t)
	fromID := createBook(t, r, "Marianela")
	toID := createBook(t, r, "Misericordia")
	w := do(t, r, http.MethodPost, "/api/loans", map[string]any{"bookId": fromID, "borrower": "Ana"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loanID := uint(decode(t, w)["id"].(float64))

	w = do(t, r, http.MethodPut, fmt.Sprintf("/api/loans/%d", loanID), map[string]any{"bookId": toID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(toID), decode(t, w)["bookId"])

	w = do(t, r, http.MethodGet, fmt.Sprintf("/api/books/%d", fromID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["book"].(map[string]any)["available"])
	w = do(t, r, http.MethodGet, fmt.Sprintf("/api/books/%d", toID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["book"].(map[string]any)["available"])

	w = do(t, r, http.MethodPut, fmt.Sprintf("/api/loans/%d", loanID), map[string]any{"bookId": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "book_not_found", decode(t, w)["kind"])
}

func Test_DuplicateReservation(t *testing.T) {
	r := newTestRouter(t)
	bookID := createBook(t, r, "El Túnel")
	path := fmt.Sprintf("/api/books/%d/reservations", bookID)

	w := do(t, r, http.MethodPost, path, map[string]any{"borrower": "Eva"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, r, http.MethodPost, path, map[string]any{"borrower": "Eva"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_reservation", decode(t, w)["kind"])
}

func Test_BadRequests(t *testing.T) {
	r := newTestRouter(t)
	bookID := createBook(t, r, "Ficciones")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"bad id", http.MethodGet, "/api/books/abc", nil, http.StatusBadRequest, "validation_error"},
		{"missing book", http.MethodGet, "/api/books/999", nil, http.StatusNotFound, "not_found"},
		{"missing loan", http.MethodPost, "/api/loans/999/return", nil, http.StatusNotFound, "loan_not_found"},
		{"bad date", http.MethodPost, "/api/loans", map[string]any{"bookId": bookID, "borrower": "Ana", "dueDate": "mañana"}, http.StatusBadRequest, "validation_error"},
		{"blank borrower", http.MethodPost, "/api/loans", map[string]any{"bookId": bookID, "borrower": " "}, http.StatusBadRequest, "validation_error"},
		{"bad status", http.MethodGet, "/api/loans?status=lost", nil, http.StatusBadRequest, "validation_error"},
		{"no title", http.MethodPost, "/api/books", map[string]any{"author": "Borges"}, http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.kind, decode(t, w)["kind"])
		})
	}
}

func Test_OverdueFilterAndStats(t *testing.T) {
	r := newTestRouter(t)
	late := createBook(t, r, "Los Pasos Perdidos")
	onTime := createBook(t, r, "La Tregua")
	w := do(t, r, http.MethodPost, "/api/loans", map[string]any{
		"bookId": late, "borrower": "María López", "loanDate": "2020-01-01", "dueDate": "2020-01-15",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["overdue"])
	w = do(t, r, http.MethodPost, "/api/loans", map[string]any{"bookId": onTime, "borrower": "Carlos"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodGet, "/api/loans?status=overdue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	loans := decode(t, w)["loans"].([]any)
	require.Len(t, loans, 1)
	assert.Equal(t, "María López", loans[0].(map[string]any)["borrower"])

	w = do(t, r, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Equal(t, float64(2), stats["books"])
	assert.Equal(t, float64(2), stats["activeLoans"])
	assert.Equal(t, float64(1), stats["overdueLoans"])
}

func Test_DeleteBook(t *testing.T) {
	r := newTestRouter(t)
	bookID := createBook(t, r, "María")
	w := do(t, r, http.MethodPost, fmt.Sprintf("/api/books/%d/loans", bookID), map[string]any{"borrower": "Ana"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodDelete, fmt.Sprintf("/api/books/%d", bookID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["loans"])
}

func Test_ImportAndExportBooks(t *testing.T) {
	r := newTestRouter(t)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Title", "Author", "Year"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"La Vorágine", "José Eustasio Rivera", 1924}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"", "Nadie", ""}))
	var xlsx bytes.Buffer
	require.NoError(t, f.Write(&xlsx))
	require.NoError(t, f.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "books.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import/books", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, float64(1), res["imported"])
	assert.Len(t, res["errors"], 1)

	w = do(t, r, http.MethodGet, "/api/export/books.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "books.xlsx")
	out, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer out.Close()
	rows, err := out.GetRows("Books")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "La Vorágine", rows[1][0])
}
