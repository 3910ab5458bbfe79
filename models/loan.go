// models/loan.go
package models

import "time"

const LoanTable = "loans"

type LoanStatus string

// Overdue is never stored; see Loan.IsOverdue.
const (
	LoanActive   LoanStatus = "Active"
	LoanReturned LoanStatus = "Returned"
)

type Loan struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	BookID   uint       `gorm:"not null;index" json:"bookId"`
	Book     *Book      `gorm:"constraint:OnDelete:CASCADE" json:"book,omitempty"`
	Borrower string     `gorm:"size:100;not null;index" json:"borrower"`
	LoanDate time.Time  `gorm:"type:date;not null;index" json:"loanDate"`
	DueDate  time.Time  `gorm:"type:date;not null" json:"dueDate"`
	Status   LoanStatus `gorm:"size:20;not null;default:'Active'" json:"status"`
	Notes    string     `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Loan) TableName() string { return LoanTable }

// IsOverdue reports whether an Active loan is past its due date on the given day.
func (l Loan) IsOverdue(today time.Time) bool {
	return l.Status == LoanActive && Date(today).After(Date(l.DueDate))
}
