// Package sheets reads and writes the catalog and loan history as .xlsx workbooks.
package sheets

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"Gin_postgres_redis_library/models"

	"github.com/xuri/excelize/v2"
)

const (
	BooksSheet = "Books"
	LoansSheet = "Loans"
)

var bookHeader = []string{"Title", "Author", "ISBN", "Genre", "Year", "Description", "Cover", "Available"}

// BookCreator is satisfied by *circulation.Engine.
type BookCreator interface {
	CreateBook(ctx context.Context, b *models.Book) (*models.Book, error)
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// 表头别名，统一小写
var columnAliases = map[string]string{
	"title":           "title",
	"titulo":          "title",
	"título":          "title",
	"author":          "author",
	"autor":           "author",
	"isbn":            "isbn",
	"genre":           "genre",
	"genero":          "genre",
	"género":          "genre",
	"year":            "year",
	"publicationyear": "year",
	"año":             "year",
	"description":     "description",
	"descripcion":     "description",
	"descripción":     "description",
	"cover":           "cover",
	"coverimage":      "cover",
	"imagen":          "cover",
}

// ImportBooks creates one book per data row of the first sheet. Bad rows are
// reported in ImportResult.Errors and do not stop the import.
func ImportBooks(ctx context.Context, r io.Reader, creator BookCreator) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", ""))
		if name, ok := columnAliases[key]; ok {
			if _, dup := cols[name]; !dup {
				cols[name] = i
			}
		}
	}
	for _, need := range []string{"title", "author"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("sheet %q has no %s column", sheet, need)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	optional := func(row []string, name string) *string {
		if s := cell(row, name); s != "" {
			return &s
		}
		return nil
	}

	res := &ImportResult{Errors: []string{}}
	for i, row := range rows[1:] {
		line := i + 2
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		b := models.Book{
			Title:       cell(row, "title"),
			Author:      cell(row, "author"),
			ISBN:        optional(row, "isbn"),
			Genre:       optional(row, "genre"),
			Description: optional(row, "description"),
			CoverImage:  optional(row, "cover"),
		}
		if y := cell(row, "year"); y != "" {
			n, err := strconv.Atoi(y)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: year %q is not a number", line, y))
				continue
			}
			b.PublicationYear = &n
		}

		if _, err := creator.CreateBook(ctx, &b); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		res.Imported++
	}
	return res, nil
}

// WriteBooks writes the catalog as a single-sheet workbook.
func WriteBooks(w io.Writer, books []models.Book) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), BooksSheet); err != nil {
		return err
	}
	if err := writeRow(f, BooksSheet, 1, toRow(bookHeader)); err != nil {
		return err
	}
	for i, b := range books {
		row := []any{b.Title, b.Author, deref(b.ISBN), deref(b.Genre), "", deref(b.Description), deref(b.CoverImage), yesNo(b.Available)}
		if b.PublicationYear != nil {
			row[4] = *b.PublicationYear
		}
		if err := writeRow(f, BooksSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(BooksSheet, "A", "B", 36); err != nil {
		return err
	}
	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, n int, row []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &row)
}

func toRow(ss []string) []any {
	row := make([]any, len(ss))
	for i, s := range ss {
		row[i] = s
	}
	return row
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
