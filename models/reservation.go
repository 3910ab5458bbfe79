// models/reservation.go
package models

import "time"

const ReservationTable = "reservations"

type ReservationStatus string

// Expired is never stored; see Reservation.IsExpired.
const (
	ReservationActive    ReservationStatus = "Active"
	ReservationCancelled ReservationStatus = "Cancelled"
	ReservationConverted ReservationStatus = "Converted"
)

type Reservation struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	BookID     uint              `gorm:"not null;index" json:"bookId"`
	Book       *Book             `gorm:"constraint:OnDelete:CASCADE" json:"book,omitempty"`
	Borrower   string            `gorm:"size:100;not null;index" json:"borrower"`
	ReservedOn time.Time         `gorm:"type:date;not null;index" json:"reservedOn"`
	ExpiresOn  time.Time         `gorm:"type:date;not null" json:"expiresOn"`
	Status     ReservationStatus `gorm:"size:20;not null;default:'Active'" json:"status"`
	Notes      string            `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Reservation) TableName() string { return ReservationTable }

// IsExpired reports whether an Active reservation is past its expiration date on the given day.
func (r Reservation) IsExpired(today time.Time) bool {
	return r.Status == ReservationActive && Date(today).After(Date(r.ExpiresOn))
}
