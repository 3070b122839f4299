package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2024, 3, 10, 23, 45, 0, 0, loc)

	d := DateOf(ts)

	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), d)
}

func TestBorrowing_IsOverdue(t *testing.T) {
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		due     time.Time
		status  BorrowingStatus
		overdue bool
	}{
		{"due yesterday", today.AddDate(0, 0, -1), BorrowingStatusBorrowed, true},
		{"due today", today, BorrowingStatusBorrowed, false},
		{"due tomorrow", today.AddDate(0, 0, 1), BorrowingStatusBorrowed, false},
		{"returned late", today.AddDate(0, 0, -5), BorrowingStatusReturned, false},
		{"legacy overdue row", today.AddDate(0, 0, -2), BorrowingStatusOverdue, true},
		{"legacy overdue row not yet due", today.AddDate(0, 0, 2), BorrowingStatusOverdue, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Borrowing{DueDate: tt.due, Status: tt.status}
			assert.Equal(t, tt.overdue, b.IsOverdue(today))
		})
	}
}

func TestBorrowing_EffectiveStatus(t *testing.T) {
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	late := Borrowing{DueDate: today.AddDate(0, 0, -1), Status: BorrowingStatusBorrowed}
	onTime := Borrowing{DueDate: today.AddDate(0, 0, 3), Status: BorrowingStatusOverdue}

	assert.Equal(t, BorrowingStatusOverdue, late.EffectiveStatus(today))
	assert.Equal(t, BorrowingStatusBorrowed, onTime.EffectiveStatus(today))
}

func TestBorrowing_DaysBorrowed(t *testing.T) {
	borrowed := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	returned := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)

	b := Borrowing{BorrowDate: borrowed, ReturnDate: &returned, Status: BorrowingStatusReturned}

	assert.Equal(t, 7, b.DaysBorrowed(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.UTC))

	// 22:00 on Mar 1 in UTC-5 is already Mar 2 in UTC
	eastCoast := time.FixedZone("UTC-5", -5*60*60)
	late := time.Date(2024, 3, 1, 22, 0, 0, 0, eastCoast).UTC()
	b = Borrowing{BorrowDate: late, ReturnDate: &returned, Status: BorrowingStatusReturned}
	assert.Equal(t, 6, b.DaysBorrowed(time.Time{}, time.UTC))
	assert.Equal(t, 7, b.DaysBorrowed(time.Time{}, eastCoast))
}

func TestDateIn(t *testing.T) {
	eastCoast := time.FixedZone("UTC-5", -5*60*60)
	instant := time.Date(2024, 3, 11, 2, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), DateOf(instant))
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), DateIn(instant, eastCoast))
}

func TestSplitGenres(t *testing.T) {
	assert.Equal(t, []string{"Fiction", "Mystery"}, SplitGenres(" Fiction, Mystery ,,"))
	assert.Nil(t, SplitGenres(""))
}
