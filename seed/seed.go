package seed

import (
	"context"
	"fmt"
	"time"

	"Gin_postgres_redis_library/circulation"
	"Gin_postgres_redis_library/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func str(s string) *string { return &s }
func year(y int) *int      { return &y }

func book(title, author, isbn, genre string, y int, desc, cover string) models.Book {
	return models.Book{
		Title:           title,
		Author:          author,
		ISBN:            str(isbn),
		Genre:           str(genre),
		PublicationYear: year(y),
		Description:     str(desc),
		CoverImage:      str(cover),
	}
}

var books = []models.Book{
	book("Cien Años de Soledad", "Gabriel García Márquez", "978-0060883287", "Realismo Mágico", 1967,
		"Una obra maestra del realismo mágico que narra la historia de la familia Buendía.", "book1.jpg"),
	book("Don Quijote de la Mancha", "Miguel de Cervantes", "978-8420412146", "Clásico", 1605,
		"La historia del ingenioso hidalgo Don Quijote de la Mancha.", "book2.jpg"),
	book("El Amor en los Tiempos del Cólera", "Gabriel García Márquez", "978-0307387581", "Romance", 1985,
		"Una historia de amor que perdura a través del tiempo.", "book3.jpg"),
	book("La Casa de los Espíritus", "Isabel Allende", "978-8497592406", "Realismo Mágico", 1982,
		"La saga de la familia del Valle a través de cuatro generaciones.", "book4.jpg"),
	book("Rayuela", "Julio Cortázar", "978-8437604572", "Experimental", 1963,
		"Una novela experimental que puede leerse de múltiples formas.", "book5.jpg"),
	book("Pedro Páramo", "Juan Rulfo", "978-8437505015", "Realismo Mágico", 1955,
		"Un viaje al pueblo fantasmal de Comala en busca del padre perdido.", "book6.jpg"),
	book("La Tregua", "Mario Benedetti", "978-8420635428", "Romance", 1960,
		"La historia de amor entre un viudo maduro y una joven empleada.", "book7.jpg"),
	book("El Túnel", "Ernesto Sabato", "978-8432248535", "Psicológico", 1948,
		"La obsesión amorosa de un pintor que lo lleva al crimen.", "book8.jpg"),
	book("Como Agua para Chocolate", "Laura Esquivel", "978-8489669819", "Realismo Mágico", 1989,
		"Una novela donde la cocina y las emociones se entrelazan mágicamente.", "book9.jpg"),
	book("El Aleph", "Jorge Luis Borges", "978-8420635590", "Fantástico", 1949,
		"Cuentos que exploran los laberintos de la realidad y la ficción.", "book10.jpg"),
	book("María", "Jorge Isaacs", "978-8437633589", "Romántico", 1867,
		"Una historia de amor trágico en el Valle del Cauca.", "book11.jpg"),
	book("Los Pasos Perdidos", "Alejo Carpentier", "978-8437505572", "Realismo Mágico", 1953,
		"Un músico emprende un viaje hacia el origen de la música.", "book12.jpg"),
	book("La Vorágine", "José Eustasio Rivera", "978-8437635484", "Aventura", 1924,
		"La lucha del hombre contra la selva amazónica.", "book13.jpg"),
	book("Doña Bárbara", "Rómulo Gallegos", "978-8437635491", "Regionalista", 1929,
		"La lucha entre la civilización y la barbarie en los llanos venezolanos.", "book14.jpg"),
	book("El Señor Presidente", "Miguel Ángel Asturias", "978-8437635507", "Político", 1946,
		"Un retrato de la dictadura en América Latina.", "book15.jpg"),
}

// 相对今天的天数偏移；book 是 books 的下标
type loanSeed struct {
	book          int
	borrower      string
	from, due     int
	returnedOnDue bool
}

var loans = []loanSeed{
	{book: 2, borrower: "Ana García", from: -15, due: 15},
	{book: 6, borrower: "Carlos Mendez", from: -10, due: 20},
	{book: 11, borrower: "María López", from: -25, due: -5}, // 逾期
	{book: 0, borrower: "Pedro Ramírez", from: -30, due: -10, returnedOnDue: true},
	{book: 4, borrower: "Laura Fernández", from: -40, due: -20, returnedOnDue: true},
}

type reservationSeed struct {
	book     int
	borrower string
	from, to int
}

var reservations = []reservationSeed{
	{book: 0, borrower: "Roberto Silva", from: -2, to: 5},
	{book: 3, borrower: "Carmen Torres", from: -1, to: 6},
	{book: 7, borrower: "Diego Morales", from: 0, to: 7},
	{book: 9, borrower: "Elena Vargas", from: -5, to: 2},
	{book: 1, borrower: "Francisco Ruiz", from: -10, to: -3}, // 已过期
}

// Seed fills an empty database with a sample catalog. Loans and reservations go
// through the engine so availability matches the seeded loans.
func Seed(ctx context.Context, db *gorm.DB, e *circulation.Engine, log *zap.Logger) error {
	var n int64
	if err := db.WithContext(ctx).Model(&models.Book{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		log.Info("catalog already has books, skipping seed", zap.Int64("books", n))
		return nil
	}

	ids := make([]uint, len(books))
	for i := range books {
		b, err := e.CreateBook(ctx, &books[i])
		if err != nil {
			return fmt.Errorf("seed book %q: %w", books[i].Title, err)
		}
		ids[i] = b.ID
	}

	today := e.Today()
	at := func(days int) *time.Time {
		t := today.AddDate(0, 0, days)
		return &t
	}

	for _, s := range loans {
		l, err := e.IssueLoan(ctx, circulation.LoanRequest{
			BookID:   ids[s.book],
			Borrower: s.borrower,
			LoanDate: at(s.from),
			DueDate:  at(s.due),
		})
		if err != nil {
			return fmt.Errorf("seed loan for %s: %w", s.borrower, err)
		}
		if s.returnedOnDue {
			if _, err := e.ReturnLoan(ctx, l.ID, at(s.due)); err != nil {
				return fmt.Errorf("seed return for %s: %w", s.borrower, err)
			}
		}
	}

	for _, s := range reservations {
		if _, err := e.PlaceReservation(ctx, circulation.ReservationRequest{
			BookID:     ids[s.book],
			Borrower:   s.borrower,
			ReservedOn: at(s.from),
			ExpiresOn:  at(s.to),
		}); err != nil {
			return fmt.Errorf("seed reservation for %s: %w", s.borrower, err)
		}
	}

	log.Info("seed complete",
		zap.Int("books", len(books)), zap.Int("loans", len(loans)), zap.Int("reservations", len(reservations)))
	return nil
}
