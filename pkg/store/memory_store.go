package store

import (
	"sort"
	"strings"
	"sync"

	"biblioteca/pkg/domain"
)

// MemoryStore keeps everything in-process. A single mutex guards all state;
// Transact holds it for the whole callback, which makes each loan transition
// atomic the same way the Postgres transaction does.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

// Transact runs fn while holding the store mutex.
func (m *MemoryStore) Transact(fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.data)
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveUser(u)
}

func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.HasUsername(username)
}

func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetUserByUsername(username)
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetUserByID(id)
}

func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListUsers()
}

func (m *MemoryStore) UserCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UserCount()
}

func (m *MemoryStore) SaveAuthor(a domain.Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveAuthor(a)
}

func (m *MemoryStore) GetAuthor(id string) (domain.Author, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetAuthor(id)
}

func (m *MemoryStore) FindAuthorByName(first, last string) (domain.Author, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.FindAuthorByName(first, last)
}

func (m *MemoryStore) ListAuthors() ([]domain.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListAuthors()
}

func (m *MemoryStore) AuthorHasBooks(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.AuthorHasBooks(id)
}

func (m *MemoryStore) DeleteAuthor(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteAuthor(id)
}

func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveBook(b)
}

func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetBook(id)
}

func (m *MemoryStore) GetBookByISBN(isbn string) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetBookByISBN(isbn)
}

func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListBooks()
}

func (m *MemoryStore) ListAvailableBooks() ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListAvailableBooks()
}

func (m *MemoryStore) BookHasLoans(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.BookHasLoans(id)
}

func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteBook(id)
}

func (m *MemoryStore) SaveLoan(l domain.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveLoan(l)
}

func (m *MemoryStore) GetLoan(id string) (domain.Loan, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetLoan(id)
}

func (m *MemoryStore) ListLoans() ([]domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListLoans()
}

func (m *MemoryStore) ListLoansByBorrower(borrowerID string) ([]domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListLoansByBorrower(borrowerID)
}

func (m *MemoryStore) LoanHasFines(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.LoanHasFines(id)
}

func (m *MemoryStore) DeleteLoan(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteLoan(id)
}

func (m *MemoryStore) SaveFine(f domain.Fine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveFine(f)
}

func (m *MemoryStore) GetFine(id string) (domain.Fine, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetFine(id)
}

func (m *MemoryStore) FindFineByType(loanID string, fineType domain.FineType) (domain.Fine, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.FindFineByType(loanID, fineType)
}

func (m *MemoryStore) ListFines() ([]domain.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListFines()
}

func (m *MemoryStore) ListFinesByLoan(loanID string) ([]domain.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListFinesByLoan(loanID)
}

func (m *MemoryStore) ListFinesByBorrower(borrowerID string) ([]domain.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ListFinesByBorrower(borrowerID)
}

// memoryData holds the maps and implements Store without locking. It is only
// reachable through MemoryStore, which owns the mutex.
type memoryData struct {
	users   map[string]domain.User
	authors map[string]domain.Author
	books   map[string]domain.Book
	loans   map[string]domain.Loan
	fines   map[string]domain.Fine
}

func newMemoryData() *memoryData {
	return &memoryData{
		users:   make(map[string]domain.User),
		authors: make(map[string]domain.Author),
		books:   make(map[string]domain.Book),
		loans:   make(map[string]domain.Loan),
		fines:   make(map[string]domain.Fine),
	}
}

// Transact on the inner data is already inside the outer lock.
func (d *memoryData) Transact(fn func(tx Store) error) error {
	return fn(d)
}

func (d *memoryData) SaveUser(u domain.User) error {
	d.users[u.ID] = u
	return nil
}

func (d *memoryData) HasUsername(username string) (bool, error) {
	_, ok, _ := d.GetUserByUsername(username)
	return ok, nil
}

func (d *memoryData) GetUserByUsername(username string) (domain.User, bool, error) {
	for _, u := range d.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (d *memoryData) GetUserByID(id string) (domain.User, bool, error) {
	u, ok := d.users[id]
	return u, ok, nil
}

func (d *memoryData) ListUsers() ([]domain.User, error) {
	res := make([]domain.User, 0, len(d.users))
	for _, u := range d.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (d *memoryData) UserCount() (int, error) {
	return len(d.users), nil
}

func (d *memoryData) SaveAuthor(a domain.Author) error {
	d.authors[a.ID] = a
	return nil
}

func (d *memoryData) GetAuthor(id string) (domain.Author, bool, error) {
	a, ok := d.authors[id]
	return a, ok, nil
}

func (d *memoryData) FindAuthorByName(first, last string) (domain.Author, bool, error) {
	first = strings.ToLower(strings.TrimSpace(first))
	last = strings.ToLower(strings.TrimSpace(last))
	for _, a := range d.authors {
		if strings.ToLower(strings.TrimSpace(a.FirstName)) == first &&
			strings.ToLower(strings.TrimSpace(a.LastName)) == last {
			return a, true, nil
		}
	}
	return domain.Author{}, false, nil
}

func (d *memoryData) ListAuthors() ([]domain.Author, error) {
	res := make([]domain.Author, 0, len(d.authors))
	for _, a := range d.authors {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].LastName != res[j].LastName {
			return res[i].LastName < res[j].LastName
		}
		return res[i].FirstName < res[j].FirstName
	})
	return res, nil
}

func (d *memoryData) AuthorHasBooks(id string) (bool, error) {
	for _, b := range d.books {
		if b.AuthorID == id {
			return true, nil
		}
	}
	return false, nil
}

func (d *memoryData) DeleteAuthor(id string) error {
	delete(d.authors, id)
	return nil
}

func (d *memoryData) SaveBook(b domain.Book) error {
	d.books[b.ID] = b
	return nil
}

func (d *memoryData) GetBook(id string) (domain.Book, bool, error) {
	b, ok := d.books[id]
	return b, ok, nil
}

func (d *memoryData) GetBookByISBN(isbn string) (domain.Book, bool, error) {
	for _, b := range d.books {
		if b.ISBN == isbn {
			return b, true, nil
		}
	}
	return domain.Book{}, false, nil
}

func (d *memoryData) ListBooks() ([]domain.Book, error) {
	return d.listBooks(func(domain.Book) bool { return true }), nil
}

func (d *memoryData) ListAvailableBooks() ([]domain.Book, error) {
	return d.listBooks(func(b domain.Book) bool { return b.Available }), nil
}

func (d *memoryData) listBooks(keep func(domain.Book) bool) []domain.Book {
	res := make([]domain.Book, 0, len(d.books))
	for _, b := range d.books {
		if keep(b) {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Title < res[j].Title })
	return res
}

func (d *memoryData) BookHasLoans(id string) (bool, error) {
	for _, l := range d.loans {
		if l.BookID == id {
			return true, nil
		}
	}
	return false, nil
}

func (d *memoryData) DeleteBook(id string) error {
	delete(d.books, id)
	return nil
}

func (d *memoryData) SaveLoan(l domain.Loan) error {
	d.loans[l.ID] = l
	return nil
}

func (d *memoryData) GetLoan(id string) (domain.Loan, bool, error) {
	l, ok := d.loans[id]
	return l, ok, nil
}

func (d *memoryData) ListLoans() ([]domain.Loan, error) {
	return d.listLoans(func(domain.Loan) bool { return true }), nil
}

func (d *memoryData) ListLoansByBorrower(borrowerID string) ([]domain.Loan, error) {
	return d.listLoans(func(l domain.Loan) bool { return l.BorrowerID == borrowerID }), nil
}

func (d *memoryData) listLoans(keep func(domain.Loan) bool) []domain.Loan {
	res := make([]domain.Loan, 0, len(d.loans))
	for _, l := range d.loans {
		if keep(l) {
			res = append(res, l)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].LoanDate.After(res[j].LoanDate) })
	return res
}

func (d *memoryData) LoanHasFines(id string) (bool, error) {
	for _, f := range d.fines {
		if f.LoanID == id {
			return true, nil
		}
	}
	return false, nil
}

func (d *memoryData) DeleteLoan(id string) error {
	delete(d.loans, id)
	return nil
}

func (d *memoryData) SaveFine(f domain.Fine) error {
	d.fines[f.ID] = f
	return nil
}

func (d *memoryData) GetFine(id string) (domain.Fine, bool, error) {
	f, ok := d.fines[id]
	return f, ok, nil
}

func (d *memoryData) FindFineByType(loanID string, fineType domain.FineType) (domain.Fine, bool, error) {
	for _, f := range d.fines {
		if f.LoanID == loanID && f.Type == fineType {
			return f, true, nil
		}
	}
	return domain.Fine{}, false, nil
}

func (d *memoryData) ListFines() ([]domain.Fine, error) {
	return d.listFines(func(domain.Fine) bool { return true }), nil
}

func (d *memoryData) ListFinesByLoan(loanID string) ([]domain.Fine, error) {
	return d.listFines(func(f domain.Fine) bool { return f.LoanID == loanID }), nil
}

func (d *memoryData) ListFinesByBorrower(borrowerID string) ([]domain.Fine, error) {
	return d.listFines(func(f domain.Fine) bool {
		loan, ok := d.loans[f.LoanID]
		return ok && loan.BorrowerID == borrowerID
	}), nil
}

func (d *memoryData) listFines(keep func(domain.Fine) bool) []domain.Fine {
	res := make([]domain.Fine, 0, len(d.fines))
	for _, f := range d.fines {
		if keep(f) {
			res = append(res, f)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].IssuedAt.Before(res[j].IssuedAt) })
	return res
}
