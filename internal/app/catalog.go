package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"biblioteca/pkg/domain"
	"biblioteca/pkg/store"
)

// BookInput carries the fields for a new or updated catalog entry.
type BookInput struct {
	Title       string
	AuthorID    string
	ISBN        string
	Description string
	TotalCopies int
}

// CreateBook adds a catalog entry. The available count starts at the owned
// total and the availability flag is derived from it.
func (a *App) CreateBook(actor domain.Actor, in BookInput) (domain.Book, error) {
	if !actor.IsWarehouseOrAdmin() {
		return domain.Book{}, fmt.Errorf("create book: %w", ErrForbidden)
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Book{}, errors.New("title required")
	}
	if in.TotalCopies < 0 {
		return domain.Book{}, errors.New("total copies must not be negative")
	}
	isbn, ok := domain.NormalizeISBN(in.ISBN)
	if !ok {
		return domain.Book{}, fmt.Errorf("identifier %q: %w", in.ISBN, ErrInvalidISBN)
	}
	if _, found, err := a.store.GetAuthor(in.AuthorID); err != nil {
		return domain.Book{}, fmt.Errorf("lookup author: %w", err)
	} else if !found {
		return domain.Book{}, fmt.Errorf("author %s: %w", in.AuthorID, ErrNotFound)
	}
	if _, exists, err := a.store.GetBookByISBN(isbn); err != nil {
		return domain.Book{}, fmt.Errorf("check isbn: %w", err)
	} else if exists {
		return domain.Book{}, fmt.Errorf("identifier %s: %w", isbn, ErrDuplicateISBN)
	}

	now := a.clock()
	book := domain.Book{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(in.Title),
		AuthorID:        in.AuthorID,
		ISBN:            isbn,
		Description:     strings.TrimSpace(in.Description),
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		Available:       in.TotalCopies > 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// GetBook returns one catalog entry.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return book, nil
}

// ListBooks returns the whole catalog.
func (a *App) ListBooks() ([]domain.Book, error) {
	return a.store.ListBooks()
}

// ListAvailableBooks returns entries with at least one available copy.
func (a *App) ListAvailableBooks() ([]domain.Book, error) {
	return a.store.ListAvailableBooks()
}

// DeleteBook removes a catalog entry. Deletion is blocked while any loan
// references the book; the caller gets a conflict, never a cascade.
func (a *App) DeleteBook(actor domain.Actor, id string) error {
	if !actor.IsWarehouseOrAdmin() {
		return fmt.Errorf("delete book: %w", ErrForbidden)
	}
	return a.store.Transact(func(tx store.Store) error {
		if _, ok, err := tx.GetBook(id); err != nil {
			return fmt.Errorf("get book: %w", err)
		} else if !ok {
			return fmt.Errorf("book %s: %w", id, ErrNotFound)
		}
		if hasLoans, err := tx.BookHasLoans(id); err != nil {
			return fmt.Errorf("check loans: %w", err)
		} else if hasLoans {
			return fmt.Errorf("book %s has dependent loans: %w", id, ErrReferentialConflict)
		}
		return tx.DeleteBook(id)
	})
}

// AdjustTotalCopies changes the owned total by delta, for example when a copy
// is permanently removed. The available count is clamped so the stock
// invariant holds.
func (a *App) AdjustTotalCopies(actor domain.Actor, id string, delta int) (domain.Book, error) {
	if !actor.IsWarehouseOrAdmin() {
		return domain.Book{}, fmt.Errorf("adjust copies: %w", ErrForbidden)
	}
	var book domain.Book
	err := a.store.Transact(func(tx store.Store) error {
		var ok bool
		var err error
		book, ok, err = tx.GetBook(id)
		if err != nil {
			return fmt.Errorf("get book: %w", err)
		}
		if !ok {
			return fmt.Errorf("book %s: %w", id, ErrNotFound)
		}
		book.SetTotalCopies(book.TotalCopies + delta)
		book.UpdatedAt = a.clock()
		return tx.SaveBook(book)
	})
	if err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// CreateAuthor registers an author; the (first, last) pair is unique
// case-insensitively.
func (a *App) CreateAuthor(actor domain.Actor, first, last, bio string) (domain.Author, error) {
	if !actor.IsWarehouseOrAdmin() {
		return domain.Author{}, fmt.Errorf("create author: %w", ErrForbidden)
	}
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if first == "" {
		return domain.Author{}, errors.New("author name required")
	}
	if _, exists, err := a.store.FindAuthorByName(first, last); err != nil {
		return domain.Author{}, fmt.Errorf("check author: %w", err)
	} else if exists {
		return domain.Author{}, fmt.Errorf("author %s %s: %w", first, last, ErrAlreadyExists)
	}
	now := a.clock()
	author := domain.Author{
		ID:        uuid.NewString(),
		FirstName: first,
		LastName:  last,
		Bio:       strings.TrimSpace(bio),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveAuthor(author); err != nil {
		return domain.Author{}, fmt.Errorf("save author: %w", err)
	}
	return author, nil
}

// ListAuthors returns all registered authors.
func (a *App) ListAuthors() ([]domain.Author, error) {
	return a.store.ListAuthors()
}

// DeleteAuthor removes an author unless a book still references them.
func (a *App) DeleteAuthor(actor domain.Actor, id string) error {
	if !actor.IsWarehouseOrAdmin() {
		return fmt.Errorf("delete author: %w", ErrForbidden)
	}
	return a.store.Transact(func(tx store.Store) error {
		if _, ok, err := tx.GetAuthor(id); err != nil {
			return fmt.Errorf("get author: %w", err)
		} else if !ok {
			return fmt.Errorf("author %s: %w", id, ErrNotFound)
		}
		if hasBooks, err := tx.AuthorHasBooks(id); err != nil {
			return fmt.Errorf("check books: %w", err)
		} else if hasBooks {
			return fmt.Errorf("author %s has dependent books: %w", id, ErrReferentialConflict)
		}
		return tx.DeleteAuthor(id)
	})
}

// FindOrCreateAuthor resolves a display name ("Gabriel García Márquez") to an
// author, creating one when the case-insensitive lookup misses.
func (a *App) FindOrCreateAuthor(fullName string) (domain.Author, error) {
	first, remainder := domain.SplitAuthorName(fullName)
	if first == "" {
		return domain.Author{}, errors.New("author name required")
	}
	author, ok, err := a.store.FindAuthorByName(first, remainder)
	if err != nil {
		return domain.Author{}, fmt.Errorf("lookup author: %w", err)
	}
	if ok {
		return author, nil
	}
	now := a.clock()
	author = domain.Author{
		ID:        uuid.NewString(),
		FirstName: first,
		LastName:  remainder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveAuthor(author); err != nil {
		return domain.Author{}, fmt.Errorf("save author: %w", err)
	}
	return author, nil
}

// BookPrefill is the catalog-entry suggestion derived from an external
// metadata lookup. Found is false when no usable data came back.
type BookPrefill struct {
	Found       bool   `json:"found"`
	Title       string `json:"titulo,omitempty"`
	AuthorID    string `json:"autor,omitempty"`
	AuthorName  string `json:"autor_nombre,omitempty"`
	Description string `json:"descripcion,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
}

// PrefillBook asks the external lookup for metadata on an ISBN. Lookup
// failures degrade to "no prefill" so catalog entry keeps working without
// the collaborator.
func (a *App) PrefillBook(ctx context.Context, actor domain.Actor, isbn string) (BookPrefill, error) {
	if !actor.IsWarehouseOrAdmin() {
		return BookPrefill{}, fmt.Errorf("prefill book: %w", ErrForbidden)
	}
	isbn, ok := domain.NormalizeISBN(isbn)
	if !ok {
		return BookPrefill{}, fmt.Errorf("identifier %q: %w", isbn, ErrInvalidISBN)
	}
	if a.lookup == nil {
		return BookPrefill{}, nil
	}
	meta, err := a.lookup.LookupISBN(ctx, isbn)
	if err != nil || meta == nil || strings.TrimSpace(meta.Title) == "" {
		return BookPrefill{}, nil
	}
	prefill := BookPrefill{
		Found:       true,
		Title:       meta.Title,
		AuthorName:  meta.AuthorName,
		Description: meta.Description,
		ISBN:        isbn,
	}
	if strings.TrimSpace(meta.AuthorName) != "" {
		author, err := a.FindOrCreateAuthor(meta.AuthorName)
		if err != nil {
			return BookPrefill{}, err
		}
		prefill.AuthorID = author.ID
	}
	return prefill, nil
}

// UploadCover stores a cover image for a book and records its storage key.
func (a *App) UploadCover(ctx context.Context, actor domain.Actor, bookID, filename string, r io.Reader, size int64, contentType string) (domain.Book, error) {
	if !actor.IsWarehouseOrAdmin() {
		return domain.Book{}, fmt.Errorf("upload cover: %w", ErrForbidden)
	}
	if a.covers == nil {
		return domain.Book{}, errors.New("cover storage not configured")
	}
	book, err := a.GetBook(bookID)
	if err != nil {
		return domain.Book{}, err
	}
	key := "covers/" + book.ID + strings.ToLower(path.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.covers.Put(ctx, key, r, size, contentType); err != nil {
		return domain.Book{}, fmt.Errorf("store cover: %w", err)
	}
	book.CoverKey = key
	book.UpdatedAt = a.clock()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// CoverURL returns a short-lived download URL for a book's cover.
func (a *App) CoverURL(ctx context.Context, bookID string) (string, error) {
	if a.covers == nil {
		return "", errors.New("cover storage not configured")
	}
	book, err := a.GetBook(bookID)
	if err != nil {
		return "", err
	}
	if book.CoverKey == "" {
		return "", fmt.Errorf("cover for book %s: %w", bookID, ErrNotFound)
	}
	return a.covers.PresignGet(ctx, book.CoverKey, 15*time.Minute)
}
