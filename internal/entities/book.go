package entities

import (
	"strings"
	"time"
)

type Book struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"index;size:512;not null" json:"title"`
	Author          string    `gorm:"index;size:256;not null" json:"author"`
	ISBN            *string   `gorm:"uniqueIndex;size:20" json:"isbn"`
	Genre           string    `gorm:"size:256" json:"genre"` // comma-separated
	PublishYear     *int      `json:"publishYear"`
	ShelfNumber     string    `gorm:"size:50" json:"shelfNumber"`
	AvailableCopies int       `gorm:"not null" json:"availableCopies"`
	TotalCopies     int       `gorm:"not null" json:"totalCopies"`
	PageCount       *int      `json:"pageCount"`
	CreatedAt       time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (Book) TableName() string {
	return "books"
}

// Genres splits the free-text genre field on commas.
func (b Book) Genres() []string {
	return SplitGenres(b.Genre)
}

// OnLoan is the number of copies currently lent out.
func (b Book) OnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

// SplitGenres splits a comma-joined genre string, trimming blanks.
func SplitGenres(genre string) []string {
	var out []string
	for _, g := range strings.Split(genre, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
