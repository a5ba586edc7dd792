package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"biblioteca/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &AuthorModel{}, &BookModel{}, &LoanModel{}, &FineModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Transact runs fn inside one database transaction. Reads of loans and books
// inside the transaction take row locks, so concurrent transitions against
// the same book serialize instead of racing the copy counter.
func (s *GormStore) Transact(fn func(tx Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

// locked applies SELECT ... FOR UPDATE when running inside a transaction.
func (s *GormStore) locked() *gorm.DB {
	if s.inTx {
		return s.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return s.db
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "password_hash", "roles", "superuser", "updated_at"}),
	}).Create(&model).Error
}

// HasUsername checks if a username is taken.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveAuthor stores or updates an author.
func (s *GormStore) SaveAuthor(a domain.Author) error {
	model := authorToModel(a)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "bio", "updated_at"}),
	}).Create(&model).Error
}

// GetAuthor retrieves an author.
func (s *GormStore) GetAuthor(id string) (domain.Author, bool, error) {
	var model AuthorModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Author{}, false, nil
		}
		return domain.Author{}, false, err
	}
	return authorFromModel(model), true, nil
}

// FindAuthorByName does a case-insensitive lookup on (first, last).
func (s *GormStore) FindAuthorByName(first, last string) (domain.Author, bool, error) {
	var model AuthorModel
	err := s.db.Where("LOWER(TRIM(first_name)) = ? AND LOWER(TRIM(last_name)) = ?",
		strings.ToLower(strings.TrimSpace(first)), strings.ToLower(strings.TrimSpace(last))).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Author{}, false, nil
		}
		return domain.Author{}, false, err
	}
	return authorFromModel(model), true, nil
}

// ListAuthors returns all authors ordered by last name.
func (s *GormStore) ListAuthors() ([]domain.Author, error) {
	var models []AuthorModel
	if err := s.db.Order("last_name ASC, first_name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Author, 0, len(models))
	for _, m := range models {
		res = append(res, authorFromModel(m))
	}
	return res, nil
}

// AuthorHasBooks reports whether any book references the author.
func (s *GormStore) AuthorHasBooks(id string) (bool, error) {
	var count int64
	if err := s.db.Model(&BookModel{}).Where("author_id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteAuthor removes an author row.
func (s *GormStore) DeleteAuthor(id string) error {
	return s.db.Delete(&AuthorModel{}, "id = ?", id).Error
}

// SaveBook stores or updates a book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "author_id", "isbn", "description",
			"total_copies", "available_copies", "available", "cover_key", "updated_at",
		}),
	}).Create(&model).Error
}

// GetBook retrieves a book, locking the row inside a transaction.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.locked().First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// GetBookByISBN retrieves a book by its identifier.
func (s *GormStore) GetBookByISBN(isbn string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.Where("isbn = ?", isbn).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns all books ordered by title.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	return s.listBooks()
}

// ListAvailableBooks returns books with at least one available copy.
func (s *GormStore) ListAvailableBooks() ([]domain.Book, error) {
	return s.listBooks("available = ?", true)
}

func (s *GormStore) listBooks(conds ...any) ([]domain.Book, error) {
	var models []BookModel
	tx := s.db.Order("title ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// BookHasLoans reports whether any loan references the book.
func (s *GormStore) BookHasLoans(id string) (bool, error) {
	var count int64
	if err := s.db.Model(&LoanModel{}).Where("book_id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteBook removes a book row. Referential protection lives in the
// application layer; this is a plain delete.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Delete(&BookModel{}, "id = ?", id).Error
}

// SaveLoan stores or updates a loan.
func (s *GormStore) SaveLoan(l domain.Loan) error {
	model := loanToModel(l)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"book_id", "borrower_id", "loan_date", "due_date", "return_date",
			"approved_at", "state", "fixed_surcharge", "updated_at",
		}),
	}).Create(&model).Error
}

// GetLoan retrieves a loan, locking the row inside a transaction.
func (s *GormStore) GetLoan(id string) (domain.Loan, bool, error) {
	var model LoanModel
	if err := s.locked().First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Loan{}, false, nil
		}
		return domain.Loan{}, false, err
	}
	return loanFromModel(model), true, nil
}

// ListLoans returns all loans, newest first.
func (s *GormStore) ListLoans() ([]domain.Loan, error) {
	return s.listLoans()
}

// ListLoansByBorrower returns loans filtered by borrower.
func (s *GormStore) ListLoansByBorrower(borrowerID string) ([]domain.Loan, error) {
	return s.listLoans("borrower_id = ?", borrowerID)
}

func (s *GormStore) listLoans(conds ...any) ([]domain.Loan, error) {
	var models []LoanModel
	tx := s.db.Order("loan_date DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Loan, 0, len(models))
	for _, m := range models {
		res = append(res, loanFromModel(m))
	}
	return res, nil
}

// LoanHasFines reports whether any fine references the loan.
func (s *GormStore) LoanHasFines(id string) (bool, error) {
	var count int64
	if err := s.db.Model(&FineModel{}).Where("loan_id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteLoan removes a loan row.
func (s *GormStore) DeleteLoan(id string) error {
	return s.db.Delete(&LoanModel{}, "id = ?", id).Error
}

// SaveFine stores or updates a fine. The (loan_id, type) unique index backs
// up the idempotent-assessment rule at the schema level.
func (s *GormStore) SaveFine(f domain.Fine) error {
	model := fineToModel(f)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "paid"}),
	}).Create(&model).Error
}

// GetFine retrieves a fine, locking the row inside a transaction.
func (s *GormStore) GetFine(id string) (domain.Fine, bool, error) {
	var model FineModel
	if err := s.locked().First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Fine{}, false, nil
		}
		return domain.Fine{}, false, err
	}
	return fineFromModel(model), true, nil
}

// FindFineByType returns the loan's fine of the given type, if any.
func (s *GormStore) FindFineByType(loanID string, fineType domain.FineType) (domain.Fine, bool, error) {
	var model FineModel
	err := s.locked().Where("loan_id = ? AND type = ?", loanID, string(fineType)).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Fine{}, false, nil
		}
		return domain.Fine{}, false, err
	}
	return fineFromModel(model), true, nil
}

// ListFines returns all fines, newest first.
func (s *GormStore) ListFines() ([]domain.Fine, error) {
	var models []FineModel
	if err := s.db.Order("issued_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return finesFromModels(models), nil
}

// ListFinesByLoan returns fines on one loan.
func (s *GormStore) ListFinesByLoan(loanID string) ([]domain.Fine, error) {
	var models []FineModel
	if err := s.db.Where("loan_id = ?", loanID).Order("issued_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return finesFromModels(models), nil
}

// ListFinesByBorrower returns fines on loans owned by the borrower.
func (s *GormStore) ListFinesByBorrower(borrowerID string) ([]domain.Fine, error) {
	var models []FineModel
	err := s.db.
		Where("loan_id IN (?)", s.db.Model(&LoanModel{}).Select("id").Where("borrower_id = ?", borrowerID)).
		Order("issued_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return finesFromModels(models), nil
}

func finesFromModels(models []FineModel) []domain.Fine {
	res := make([]domain.Fine, 0, len(models))
	for _, m := range models {
		res = append(res, fineFromModel(m))
	}
	return res
}

func userToModel(u domain.User) UserModel {
	rawRoles, _ := json.Marshal(u.Roles)
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Roles:        datatypes.JSON(rawRoles),
		Superuser:    u.Superuser,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	var roles []domain.Role
	if len(m.Roles) > 0 {
		_ = json.Unmarshal(m.Roles, &roles)
	}
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Roles:        roles,
		Superuser:    m.Superuser,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func authorToModel(a domain.Author) AuthorModel {
	return AuthorModel{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Bio:       a.Bio,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func authorFromModel(m AuthorModel) domain.Author {
	return domain.Author{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Bio:       m.Bio,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:              b.ID,
		Title:           b.Title,
		AuthorID:        b.AuthorID,
		ISBN:            b.ISBN,
		Description:     b.Description,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		Available:       b.Available,
		CoverKey:        b.CoverKey,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:              m.ID,
		Title:           m.Title,
		AuthorID:        m.AuthorID,
		ISBN:            m.ISBN,
		Description:     m.Description,
		TotalCopies:     m.TotalCopies,
		AvailableCopies: m.AvailableCopies,
		Available:       m.Available,
		CoverKey:        m.CoverKey,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func loanToModel(l domain.Loan) LoanModel {
	var due *time.Time
	if !l.DueDate.IsZero() {
		d := l.DueDate
		due = &d
	}
	return LoanModel{
		ID:             l.ID,
		BookID:         l.BookID,
		BorrowerID:     l.BorrowerID,
		LoanDate:       l.LoanDate,
		DueDate:        due,
		ReturnDate:     l.ReturnDate,
		ApprovedAt:     l.ApprovedAt,
		State:          string(l.State),
		FixedSurcharge: l.FixedSurcharge,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

func loanFromModel(m LoanModel) domain.Loan {
	loan := domain.Loan{
		ID:             m.ID,
		BookID:         m.BookID,
		BorrowerID:     m.BorrowerID,
		LoanDate:       m.LoanDate,
		ReturnDate:     m.ReturnDate,
		ApprovedAt:     m.ApprovedAt,
		State:          domain.LoanState(m.State),
		FixedSurcharge: m.FixedSurcharge,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.DueDate != nil {
		loan.DueDate = *m.DueDate
	}
	return loan
}

func fineToModel(f domain.Fine) FineModel {
	return FineModel{
		ID:       f.ID,
		LoanID:   f.LoanID,
		Type:     string(f.Type),
		Amount:   f.Amount,
		Paid:     f.Paid,
		IssuedAt: f.IssuedAt,
	}
}

func fineFromModel(m FineModel) domain.Fine {
	return domain.Fine{
		ID:       m.ID,
		LoanID:   m.LoanID,
		Type:     domain.FineType(m.Type),
		Amount:   m.Amount,
		Paid:     m.Paid,
		IssuedAt: m.IssuedAt,
	}
}
