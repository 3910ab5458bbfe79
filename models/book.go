// models/book.go
package models

import "time"

const BookTable = "books"

type Book struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	Title           string  `gorm:"size:200;not null;index" json:"title" validate:"required,max=200"`
	Author          string  `gorm:"size:100;not null;index" json:"author" validate:"required,max=100"`
	ISBN            *string `gorm:"size:20" json:"isbn,omitempty" validate:"omitempty,max=20"`
	Genre           *string `gorm:"size:50" json:"genre,omitempty" validate:"omitempty,max=50"`
	PublicationYear *int    `json:"publicationYear,omitempty" validate:"omitempty,min=1000,max=2100"`
	Description     *string `gorm:"size:1000" json:"description,omitempty" validate:"omitempty,max=1000"`
	CoverImage      *string `gorm:"size:500" json:"coverImage,omitempty" validate:"omitempty,max=500"`

	// 冗余列：没有 Active 借阅时为 true，只由 circulation 引擎维护
	Available bool `gorm:"not null;default:true" json:"available"`
	// 乐观锁版本号，每次翻转 Available 时 +1
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Book) TableName() string { return BookTable }
