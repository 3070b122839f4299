// Command generate_demo creates a demo library database with public domain
// books, a handful of members and a realistic mix of loans.
// Usage: go run cmd/generate_demo/main.go [-db path/to/demo.db]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/database/books"
	"github.com/librarydesk/librarydesk/internal/database/borrowings"
	"github.com/librarydesk/librarydesk/internal/database/members"
	"github.com/librarydesk/librarydesk/internal/entities"
)

const (
	defaultDemoDatabasePath = "./demo/demo.db"
	defaultDemoPassword     = "demo-password"
)

type demoBook struct {
	Title  string
	Author string
	ISBN   string
	Genre  string
	Year   int
	Pages  int
	Shelf  string
	Copies int
}

type demoMember struct {
	Name     string
	Username string
	Email    string
}

// demoLoan places a loan relative to today. A negative ReturnedAfter leaves
// the copy out.
type demoLoan struct {
	Book          int
	Member        int
	DaysAgo       int
	LoanDays      int
	ReturnedAfter int
	Notes         string
}

func main() {
	dbPath := flag.String("db", defaultDemoDatabasePath, "path to the demo database file")
	password := flag.String("password", defaultDemoPassword, "password for every demo account")
	flag.Parse()

	log.Printf("Generating demo database at %s...", *dbPath)

	// Delete existing demo database to start fresh
	if err := os.Remove(*dbPath); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove existing demo database: %v", err)
	}

	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		log.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	memberRepo := members.NewRepository(db.DB)
	svc := auth.NewService(memberRepo, config.Auth{BcryptCost: bcrypt.DefaultCost})

	admin, err := svc.CreateAdmin(ctx, auth.SignupInput{
		Name:     "Head Librarian",
		Username: "librarian",
		Email:    "librarian@example.com",
		Password: *password,
	})
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}
	log.Printf("Admin: %s / %s", admin.Username, *password)

	memberIDs := createMembers(ctx, memberRepo, *password)
	bookIDs := createBooks(ctx, books.NewRepository(db.DB))
	createLoans(ctx, borrowings.NewRepository(db.DB), bookIDs, memberIDs)

	log.Println("Demo database generated successfully!")
}

func createMembers(ctx context.Context, repo *members.Repository, password string) []uint {
	hash, err := auth.HashPassword(password, bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash demo password: %v", err)
	}

	var ids []uint
	for i, m := range getDemoMembers() {
		email := m.Email
		member := &entities.Member{
			Name:           m.Name,
			Username:       m.Username,
			Email:          &email,
			PasswordHash:   hash,
			EmailVerified:  true,
			MembershipDate: time.Now().UTC().AddDate(0, -(i+1)*3, 0),
		}
		if err := repo.CreateMember(ctx, member); err != nil {
			log.Fatalf("Failed to create member %s: %v", m.Username, err)
		}
		log.Printf("Member: %s (%s)", member.Name, member.Username)
		ids = append(ids, member.ID)
	}
	return ids
}

func createBooks(ctx context.Context, repo *books.Repository) []uint {
	var ids []uint
	for _, b := range getPublicDomainBooks() {
		isbn, year, pages := b.ISBN, b.Year, b.Pages
		book := &entities.Book{
			Title:           b.Title,
			Author:          b.Author,
			ISBN:            &isbn,
			Genre:           b.Genre,
			PublishYear:     &year,
			PageCount:       &pages,
			ShelfNumber:     b.Shelf,
			TotalCopies:     b.Copies,
			AvailableCopies: b.Copies,
		}
		if err := repo.CreateBook(ctx, book); err != nil {
			log.Fatalf("Failed to save book %s: %v", b.Title, err)
		}
		log.Printf("Saved: %s by %s (%d copies)", book.Title, book.Author, book.TotalCopies)
		ids = append(ids, book.ID)
	}
	return ids
}

func createLoans(ctx context.Context, repo *borrowings.Repository, bookIDs, memberIDs []uint) {
	now := time.Now().UTC()
	for _, l := range getDemoLoans() {
		borrowed := now.AddDate(0, 0, -l.DaysAgo)
		loan, err := repo.Borrow(ctx, borrowings.BorrowInput{
			BookID:     bookIDs[l.Book],
			UserID:     memberIDs[l.Member],
			BorrowDate: &borrowed,
			LoanDays:   l.LoanDays,
			Notes:      l.Notes,
		})
		if err != nil {
			log.Printf("Failed to create loan for book %d: %v", bookIDs[l.Book], err)
			continue
		}

		if l.ReturnedAfter >= 0 {
			returnedAt := borrowed.AddDate(0, 0, l.ReturnedAfter)
			clock := func() time.Time { return returnedAt }
			if _, err := repo.WithClock(clock).Return(ctx, loan.ID); err != nil {
				log.Printf("Failed to return loan %d: %v", loan.ID, err)
			}
		}
	}
}

func getDemoMembers() []demoMember {
	return []demoMember{
		{Name: "Ada Byron", Username: "ada", Email: "ada@example.com"},
		{Name: "Charles Dodgson", Username: "charles", Email: "charles@example.com"},
		{Name: "Mary Shelley", Username: "mary", Email: "mary@example.com"},
		{Name: "Edgar Poe", Username: "edgar", Email: "edgar@example.com"},
		{Name: "Emily Bronte", Username: "emily", Email: "emily@example.com"},
	}
}

func getPublicDomainBooks() []demoBook {
	return []demoBook{
		{"Pride and Prejudice", "Jane Austen", "9780141439518", "Fiction, Romance, Classics", 1813, 432, "A-1", 3},
		{"Frankenstein", "Mary Shelley", "9780486282114", "Fiction, Horror, Science Fiction", 1818, 280, "A-2", 2},
		{"Moby-Dick", "Herman Melville", "9780142437247", "Fiction, Adventure, Classics", 1851, 720, "A-3", 1},
		{"Alice's Adventures in Wonderland", "Lewis Carroll", "9780141439761", "Fiction, Fantasy, Children", 1865, 192, "B-1", 2},
		{"The Adventures of Sherlock Holmes", "Arthur Conan Doyle", "9780140439076", "Fiction, Mystery", 1892, 307, "B-2", 2},
		{"Dracula", "Bram Stoker", "9780141439846", "Fiction, Horror, Classics", 1897, 488, "B-3", 1},
		{"The War of the Worlds", "H. G. Wells", "9780141441030", "Fiction, Science Fiction", 1898, 192, "C-1", 2},
		{"Meditations", "Marcus Aurelius", "9780140449334", "Philosophy", 180, 304, "D-1", 1},
		{"On the Origin of Species", "Charles Darwin", "9780451529060", "Science, Nonfiction", 1859, 512, "D-2", 1},
		{"Walden", "Henry David Thoreau", "9780691096124", "Philosophy, Nonfiction", 1854, 352, "D-3", 1},
		{"The Time Machine", "H. G. Wells", "9780141439976", "Fiction, Science Fiction", 1895, 128, "C-2", 2},
		{"Wuthering Heights", "Emily Bronte", "9780141439556", "Fiction, Romance, Classics", 1847, 416, "A-4", 1},
	}
}

func getDemoLoans() []demoLoan {
	return []demoLoan{
		// History
		{Book: 0, Member: 0, DaysAgo: 90, LoanDays: 14, ReturnedAfter: 12},
		{Book: 1, Member: 1, DaysAgo: 75, LoanDays: 14, ReturnedAfter: 20, Notes: "Returned late"},
		{Book: 3, Member: 2, DaysAgo: 60, LoanDays: 14, ReturnedAfter: 7},
		{Book: 0, Member: 3, DaysAgo: 45, LoanDays: 21, ReturnedAfter: 18},
		{Book: 4, Member: 0, DaysAgo: 30, LoanDays: 14, ReturnedAfter: 10},
		{Book: 7, Member: 4, DaysAgo: 20, LoanDays: 14, ReturnedAfter: 5},
		{Book: 1, Member: 2, DaysAgo: 6, LoanDays: 14, ReturnedAfter: 3},
		// Out on loan
		{Book: 0, Member: 1, DaysAgo: 3, LoanDays: 14, ReturnedAfter: -1},
		{Book: 2, Member: 0, DaysAgo: 5, LoanDays: 14, ReturnedAfter: -1},
		{Book: 6, Member: 3, DaysAgo: 1, LoanDays: 14, ReturnedAfter: -1},
		{Book: 10, Member: 4, DaysAgo: 2, LoanDays: 21, ReturnedAfter: -1, Notes: "Book club pick"},
		// Overdue
		{Book: 5, Member: 1, DaysAgo: 30, LoanDays: 14, ReturnedAfter: -1},
		{Book: 8, Member: 2, DaysAgo: 25, LoanDays: 14, ReturnedAfter: -1, Notes: "Reminder sent"},
	}
}
