package store

import "biblioteca/pkg/domain"

// Store defines persistence operations for users, authors, books, loans,
// and fines.
//
// Transact runs fn against a view of the store where every read and write
// belongs to one atomic unit: either all writes commit or none do. Loan
// transitions that touch a book's copy counter must go through it.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUsername(username string) (bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	UserCount() (int, error)

	// authors
	SaveAuthor(domain.Author) error
	GetAuthor(id string) (domain.Author, bool, error)
	FindAuthorByName(first, last string) (domain.Author, bool, error)
	ListAuthors() ([]domain.Author, error)
	AuthorHasBooks(id string) (bool, error)
	DeleteAuthor(id string) error

	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	GetBookByISBN(isbn string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	ListAvailableBooks() ([]domain.Book, error)
	BookHasLoans(id string) (bool, error)
	DeleteBook(id string) error

	// loans
	SaveLoan(domain.Loan) error
	GetLoan(id string) (domain.Loan, bool, error)
	ListLoans() ([]domain.Loan, error)
	ListLoansByBorrower(borrowerID string) ([]domain.Loan, error)
	LoanHasFines(id string) (bool, error)
	DeleteLoan(id string) error

	// fines
	SaveFine(domain.Fine) error
	GetFine(id string) (domain.Fine, bool, error)
	FindFineByType(loanID string, fineType domain.FineType) (domain.Fine, bool, error)
	ListFines() ([]domain.Fine, error)
	ListFinesByLoan(loanID string) ([]domain.Fine, error)
	ListFinesByBorrower(borrowerID string) ([]domain.Fine, error)

	Transact(fn func(tx Store) error) error
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
