// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, migrations, legacy status cleanup
//	├── errors.go        # DomainError reasons, constraint classification
//	├── pagination.go    # Page normalization
//	├── books/           # Catalog CRUD, search, genres
//	├── members/         # Members, credentials, email verification
//	├── borrowings/      # Loan lifecycle and copy accounting
//	├── stats/           # Dashboard aggregates and the activity feed
//	├── audit/           # Audit event storage
//	└── settings/        # Application settings
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./library.db")
//
//	booksRepo := books.NewRepository(db.DB)
//	loans := borrowings.NewRepository(db.DB)
//
//	loan, err := loans.Borrow(ctx, borrowings.BorrowInput{BookID: 1, UserID: 2, DueDate: due})
//
// # Transactions
//
// The pool holds one connection. Code running inside db.Transaction must use
// the tx handle it was given; touching the outer *gorm.DB from inside a
// transaction blocks forever.
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Add compile-time interface checks in internal/interfaces
package database
