package sheets

import (
	"io"
	"time"

	"Gin_postgres_redis_library/models"

	"github.com/xuri/excelize/v2"
)

var loanHeader = []string{"ID", "Book", "Borrower", "Loan date", "Due date", "Status", "Notes"}

const dateLayout = "2006-01-02"

// WriteLoans exports the loan history. Active loans past due on today are
// written with status "Overdue".
func WriteLoans(w io.Writer, loans []models.Loan, today time.Time) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), LoansSheet); err != nil {
		return err
	}
	if err := writeRow(f, LoansSheet, 1, toRow(loanHeader)); err != nil {
		return err
	}
	for i, l := range loans {
		title := ""
		if l.Book != nil {
			title = l.Book.Title
		}
		status := string(l.Status)
		if l.IsOverdue(today) {
			status = "Overdue"
		}
		row := []any{l.ID, title, l.Borrower, l.LoanDate.UTC().Format(dateLayout), l.DueDate.UTC().Format(dateLayout), status, l.Notes}
		if err := writeRow(f, LoansSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(LoansSheet, "B", "C", 30); err != nil {
		return err
	}
	return f.Write(w)
}
