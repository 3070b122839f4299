// Package stats provides read-only aggregate queries for the dashboard
// and the activity feed.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/entities"
)

var activeStatuses = []string{
	string(entities.BorrowingStatusBorrowed),
	string(entities.BorrowingStatusOverdue),
}

// Activity types reported by ActivityFeed.
const (
	ActivityBorrow    = "borrow"
	ActivityReturn    = "return"
	ActivityNewBook   = "new_book"
	ActivityNewMember = "new_member"
	ActivityOverdue   = "overdue"
)

type Dashboard struct {
	TotalBooks         int64   `json:"totalBooks"`
	TotalCopies        int64   `json:"totalCopies"`
	AvailableCopies    int64   `json:"availableCopies"`
	TotalMembers       int64   `json:"totalMembers"`
	ActiveBorrowings   int64   `json:"activeBorrowings"`
	OverdueBorrowings  int64   `json:"overdueBorrowings"`
	ReturnedBorrowings int64   `json:"returnedBorrowings"`
	AverageBorrowDays  float64 `json:"averageBorrowDays"`
	// Percent change of records added this calendar month over last month.
	BooksChange      int `json:"booksChange"`
	MembersChange    int `json:"membersChange"`
	BorrowingsChange int `json:"borrowingsChange"`
}

type BookCount struct {
	BookID      uint   `json:"bookId"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	BorrowCount int64  `json:"borrowCount"`
}

type MemberCount struct {
	UserID      uint   `json:"userId"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	BorrowCount int64  `json:"borrowCount"`
}

type DayActivity struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Day     string `json:"day"`  // Mon, Tue, ...
	Borrows int    `json:"borrows"`
	Returns int    `json:"returns"`
}

type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

type Activity struct {
	Type        string    `json:"type"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	BookID      *uint     `json:"bookId,omitempty"`
	MemberID    *uint     `json:"memberId,omitempty"`
	BorrowingID *uint     `json:"borrowingId,omitempty"`
}

type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithClock returns a copy of the repository reading time from now.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	return &Repository{db: r.db, now: now}
}

// PercentChange compares this period with the last one, rounded to a whole percent.
// Growth from zero is reported as 100.
func PercentChange(last, this int64) int {
	if last == 0 {
		if this == 0 {
			return 0
		}
		return 100
	}
	return int(math.Round(float64(this-last) / float64(last) * 100))
}

func (r *Repository) Dashboard(ctx context.Context) (*Dashboard, error) {
	db := r.db.WithContext(ctx)
	today := entities.DateOf(r.now())
	d := &Dashboard{}

	if err := db.Model(&entities.Book{}).Count(&d.TotalBooks).Error; err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	var copies struct {
		Total     int64
		Available int64
	}
	err := db.Model(&entities.Book{}).
		Select("COALESCE(SUM(total_copies), 0) AS total, COALESCE(SUM(available_copies), 0) AS available").
		Scan(&copies).Error
	if err != nil {
		return nil, fmt.Errorf("sum copies: %w", err)
	}
	d.TotalCopies, d.AvailableCopies = copies.Total, copies.Available

	if err := db.Model(&entities.Member{}).Count(&d.TotalMembers).Error; err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	if err := db.Model(&entities.Borrowing{}).
		Where("status IN ? AND due_date >= ?", activeStatuses, today).
		Count(&d.ActiveBorrowings).Error; err != nil {
		return nil, fmt.Errorf("count active borrowings: %w", err)
	}
	if err := db.Model(&entities.Borrowing{}).
		Where("status IN ? AND due_date < ?", activeStatuses, today).
		Count(&d.OverdueBorrowings).Error; err != nil {
		return nil, fmt.Errorf("count overdue borrowings: %w", err)
	}
	if err := db.Model(&entities.Borrowing{}).
		Where("status = ?", entities.BorrowingStatusReturned).
		Count(&d.ReturnedBorrowings).Error; err != nil {
		return nil, fmt.Errorf("count returned borrowings: %w", err)
	}

	if d.AverageBorrowDays, err = r.AverageBorrowDays(ctx); err != nil {
		return nil, err
	}

	thisMonth, lastMonth := monthBounds(r.now())
	changes := []struct {
		model  any
		column string
		out    *int
	}{
		{&entities.Book{}, "created_at", &d.BooksChange},
		{&entities.Member{}, "membership_date", &d.MembersChange},
		{&entities.Borrowing{}, "borrow_date", &d.BorrowingsChange},
	}
	for _, c := range changes {
		var last, this int64
		if err := db.Model(c.model).Where(c.column+" >= ? AND "+c.column+" < ?", lastMonth, thisMonth).Count(&last).Error; err != nil {
			return nil, fmt.Errorf("count %s last month: %w", c.column, err)
		}
		if err := db.Model(c.model).Where(c.column+" >= ?", thisMonth).Count(&this).Error; err != nil {
			return nil, fmt.Errorf("count %s this month: %w", c.column, err)
		}
		*c.out = PercentChange(last, this)
	}

	return d, nil
}

// AverageBorrowDays is the mean loan length of returned borrowings in days,
// rounded to one decimal. Zero when nothing has been returned.
func (r *Repository) AverageBorrowDays(ctx context.Context) (float64, error) {
	var rows []entities.Borrowing
	err := r.db.WithContext(ctx).Select("borrow_date", "return_date").
		Where("status = ? AND return_date IS NOT NULL", entities.BorrowingStatusReturned).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("load returned borrowings: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var days float64
	for _, b := range rows {
		days += b.ReturnDate.Sub(b.BorrowDate).Hours() / 24
	}
	return math.Round(days/float64(len(rows))*10) / 10, nil
}

func (r *Repository) MostBorrowedBooks(ctx context.Context, limit int) ([]BookCount, error) {
	rows := []BookCount{}
	err := r.db.WithContext(ctx).Table("borrowings").
		Select("books.id AS book_id, books.title, books.author, COUNT(borrowings.id) AS borrow_count").
		Joins("JOIN books ON books.id = borrowings.book_id").
		Group("books.id, books.title, books.author").
		Order("borrow_count DESC, books.title ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("most borrowed books: %w", err)
	}
	return rows, nil
}

func (r *Repository) MostActiveMembers(ctx context.Context, limit int) ([]MemberCount, error) {
	rows := []MemberCount{}
	err := r.db.WithContext(ctx).Table("borrowings").
		Select("members.id AS user_id, members.name, members.username, COUNT(borrowings.id) AS borrow_count").
		Joins("JOIN members ON members.id = borrowings.user_id").
		Group("members.id, members.name, members.username").
		Order("borrow_count DESC, members.name ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("most active members: %w", err)
	}
	return rows, nil
}

// WeeklyActivity counts borrows and returns per day over the last seven
// calendar days, oldest first, today last.
func (r *Repository) WeeklyActivity(ctx context.Context) ([]DayActivity, error) {
	now := r.now()
	loc := now.Location()
	y, m, d := now.Date()
	start := time.Date(y, m, d-6, 0, 0, 0, 0, loc)

	var rows []entities.Borrowing
	err := r.db.WithContext(ctx).Select("borrow_date", "return_date").
		Where("borrow_date >= ? OR return_date >= ?", start.UTC(), start.UTC()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load weekly borrowings: %w", err)
	}

	days := make([]DayActivity, 7)
	for i := range days {
		day := start.AddDate(0, 0, i)
		days[i] = DayActivity{Date: day.Format("2006-01-02"), Day: day.Format("Mon")}
	}
	bucket := func(t time.Time) int {
		ly, lm, ld := t.In(loc).Date()
		return int(time.Date(ly, lm, ld, 0, 0, 0, 0, loc).Sub(start).Round(time.Hour).Hours() / 24)
	}
	for _, b := range rows {
		if i := bucket(b.BorrowDate); !b.BorrowDate.Before(start) && i < 7 {
			days[i].Borrows++
		}
		if b.ReturnDate != nil && !b.ReturnDate.Before(start) {
			if i := bucket(*b.ReturnDate); i < 7 {
				days[i].Returns++
			}
		}
	}
	return days, nil
}

// GenreDistribution counts books per genre. A book listing several genres
// counts once for each. Genres are matched case-insensitively and reported
// with the first spelling seen.
func (r *Repository) GenreDistribution(ctx context.Context) ([]GenreCount, error) {
	var genres []string
	err := r.db.WithContext(ctx).Model(&entities.Book{}).
		Where("genre <> ''").Order("id ASC").Pluck("genre", &genres).Error
	if err != nil {
		return nil, fmt.Errorf("load genres: %w", err)
	}

	index := make(map[string]int)
	out := []GenreCount{}
	for _, raw := range genres {
		for _, g := range entities.SplitGenres(raw) {
			key := strings.ToLower(g)
			if i, ok := index[key]; ok {
				out[i].Count++
				continue
			}
			index[key] = len(out)
			out = append(out, GenreCount{Genre: g, Count: 1})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.ToLower(out[i].Genre) < strings.ToLower(out[j].Genre)
	})
	return out, nil
}

// ActivityFeed merges borrows, returns, new books, new members and overdue
// loans into one newest-first feed. Each source is read only as deep as the
// requested page needs; the total comes from count queries.
func (r *Repository) ActivityFeed(ctx context.Context, page database.Page) ([]Activity, int64, error) {
	db := r.db.WithContext(ctx)
	window := page.Window()
	today := entities.DateOf(r.now())

	var (
		feed  []Activity
		total int64
	)
	count := func(q *gorm.DB) error {
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return err
		}
		total += n
		return nil
	}

	var borrowed []entities.Borrowing
	if err := db.Preload("Book").Preload("User").
		Order("borrow_date DESC, id DESC").Limit(window).Find(&borrowed).Error; err != nil {
		return nil, 0, fmt.Errorf("feed borrows: %w", err)
	}
	for _, b := range borrowed {
		feed = append(feed, loanActivity(ActivityBorrow, b.BorrowDate, b, "%s borrowed %s"))
	}
	if err := count(db.Model(&entities.Borrowing{})); err != nil {
		return nil, 0, err
	}

	var returned []entities.Borrowing
	returnedQuery := func() *gorm.DB {
		return db.Model(&entities.Borrowing{}).Where("status = ? AND return_date IS NOT NULL", entities.BorrowingStatusReturned)
	}
	if err := returnedQuery().Preload("Book").Preload("User").
		Order("return_date DESC, id DESC").Limit(window).Find(&returned).Error; err != nil {
		return nil, 0, fmt.Errorf("feed returns: %w", err)
	}
	for _, b := range returned {
		feed = append(feed, loanActivity(ActivityReturn, *b.ReturnDate, b, "%s returned %s"))
	}
	if err := count(returnedQuery()); err != nil {
		return nil, 0, err
	}

	var books []entities.Book
	if err := db.Order("created_at DESC, id DESC").Limit(window).Find(&books).Error; err != nil {
		return nil, 0, fmt.Errorf("feed books: %w", err)
	}
	for _, b := range books {
		id := b.ID
		feed = append(feed, Activity{
			Type:        ActivityNewBook,
			Date:        b.CreatedAt,
			Description: fmt.Sprintf("New book added: %s by %s", b.Title, b.Author),
			BookID:      &id,
		})
	}
	if err := count(db.Model(&entities.Book{})); err != nil {
		return nil, 0, err
	}

	var members []entities.Member
	if err := db.Order("membership_date DESC, id DESC").Limit(window).Find(&members).Error; err != nil {
		return nil, 0, fmt.Errorf("feed members: %w", err)
	}
	for _, m := range members {
		id := m.ID
		feed = append(feed, Activity{
			Type:        ActivityNewMember,
			Date:        m.MembershipDate,
			Description: fmt.Sprintf("New member joined: %s", m.Name),
			MemberID:    &id,
		})
	}
	if err := count(db.Model(&entities.Member{})); err != nil {
		return nil, 0, err
	}

	var overdue []entities.Borrowing
	overdueQuery := func() *gorm.DB {
		return db.Model(&entities.Borrowing{}).Where("status IN ? AND due_date < ?", activeStatuses, today)
	}
	if err := overdueQuery().Preload("Book").Preload("User").
		Order("due_date DESC, id DESC").Limit(window).Find(&overdue).Error; err != nil {
		return nil, 0, fmt.Errorf("feed overdue: %w", err)
	}
	for _, b := range overdue {
		feed = append(feed, loanActivity(ActivityOverdue, b.DueDate, b, "%s has not returned %s"))
	}
	if err := count(overdueQuery()); err != nil {
		return nil, 0, err
	}

	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].Date.After(feed[j].Date)
	})

	start := page.Offset()
	if start >= len(feed) {
		return []Activity{}, total, nil
	}
	end := start + page.Size
	if end > len(feed) {
		end = len(feed)
	}
	return feed[start:end], total, nil
}

func loanActivity(kind string, at time.Time, b entities.Borrowing, format string) Activity {
	member, title := "A member", "a book"
	if b.User != nil {
		member = b.User.Name
	}
	if b.Book != nil {
		title = b.Book.Title
	}
	id, bookID, userID := b.ID, b.BookID, b.UserID
	return Activity{
		Type:        kind,
		Date:        at,
		Description: fmt.Sprintf(format, member, title),
		BookID:      &bookID,
		MemberID:    &userID,
		BorrowingID: &id,
	}
}

// monthBounds returns the UTC instants at which the current and the
// previous calendar month started, in now's location.
func monthBounds(now time.Time) (thisMonth, lastMonth time.Time) {
	y, m, _ := now.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	return start.UTC(), start.AddDate(0, -1, 0).UTC()
}
