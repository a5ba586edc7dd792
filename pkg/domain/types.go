package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LoanState is the lifecycle state of a loan.
type LoanState string

const (
	LoanRequested  LoanState = "requested"
	LoanActive     LoanState = "active"
	LoanReturned   LoanState = "returned"
	LoanLateUnpaid LoanState = "late_unpaid"
	LoanRejected   LoanState = "rejected"
)

// loanTransitions lists the valid target states per current state.
// Fine assessment may force a loan into late_unpaid outside this table;
// the table guards the request/approve/reject/return/pay paths.
var loanTransitions = map[LoanState][]LoanState{
	LoanRequested:  {LoanActive, LoanRejected},
	LoanActive:     {LoanReturned, LoanLateUnpaid},
	LoanLateUnpaid: {LoanReturned},
	LoanReturned:   {LoanLateUnpaid},
	LoanRejected:   {},
}

// CanTransition reports whether moving from s to target is a valid transition.
func (s LoanState) CanTransition(target LoanState) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// FineType classifies the cause of a fine.
type FineType string

const (
	FineLate    FineType = "late"
	FineLost    FineType = "lost"
	FineDamaged FineType = "damaged"
	FineOther   FineType = "other"
)

// KnownFineType reports whether t is one of the enumerated causes.
func KnownFineType(t FineType) bool {
	switch t {
	case FineLate, FineLost, FineDamaged, FineOther:
		return true
	}
	return false
}

// Role is a membership group granted to a user.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleWarehouse Role = "warehouse"
	RoleClient    Role = "client"
)

// Actor is the identity and role set an operation runs as. Every mutating
// operation receives it explicitly; there is no ambient request context.
type Actor struct {
	UserID    string
	Roles     []Role
	Superuser bool
}

func (a Actor) hasRole(r Role) bool {
	for _, role := range a.Roles {
		if role == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor holds the admin role or is a superuser.
func (a Actor) IsAdmin() bool {
	return a.Superuser || a.hasRole(RoleAdmin)
}

// IsWarehouseOrAdmin gates catalog mutations (books, authors, stock).
func (a Actor) IsWarehouseOrAdmin() bool {
	return a.IsAdmin() || a.hasRole(RoleWarehouse)
}

// IsLoanManager gates loan and fine transitions (admin or librarian).
func (a Actor) IsLoanManager() bool {
	return a.IsAdmin() || a.hasRole(RoleLibrarian)
}

// IsClient reports whether the actor is a borrowing client.
func (a Actor) IsClient() bool {
	return a.hasRole(RoleClient)
}

// User is a registered account (staff or client).
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles"`
	Superuser    bool      `json:"superuser"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Actor returns the role view of the user for authorization checks.
func (u User) Actor() Actor {
	return Actor{UserID: u.ID, Roles: u.Roles, Superuser: u.Superuser}
}

// Author is an immutable identity; (nombre, apellido) is unique
// case-insensitively.
type Author struct {
	ID        string    `json:"id"`
	FirstName string    `json:"nombre"`
	LastName  string    `json:"apellido"`
	Bio       string    `json:"bibliografia,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Book is a catalog entry. AvailableCopies is owned exclusively by the
// catalog; Available is derived and recomputed on every mutation.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"titulo"`
	AuthorID        string    `json:"autor"`
	ISBN            string    `json:"isbn"`
	Description     string    `json:"descripcion,omitempty"`
	TotalCopies     int       `json:"cantidad_total"`
	AvailableCopies int       `json:"ejemplares_disponibles"`
	Available       bool      `json:"disponible"`
	CoverKey        string    `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// refresh recomputes the derived availability flag. Never set Available
// directly.
func (b *Book) refresh() {
	b.Available = b.AvailableCopies > 0
}

// ReserveCopy takes one copy off the shelf. It reports false when no copy
// is available.
func (b *Book) ReserveCopy() bool {
	if b.AvailableCopies <= 0 {
		return false
	}
	b.AvailableCopies--
	b.refresh()
	return true
}

// ReleaseCopy puts one copy back, capped at the owned total.
func (b *Book) ReleaseCopy() {
	if b.AvailableCopies < b.TotalCopies {
		b.AvailableCopies++
	}
	b.refresh()
}

// SetTotalCopies changes the owned total, flooring at zero and clamping the
// available count so 0 <= available <= total always holds.
func (b *Book) SetTotalCopies(total int) {
	if total < 0 {
		total = 0
	}
	b.TotalCopies = total
	if b.AvailableCopies > total {
		b.AvailableCopies = total
	}
	b.refresh()
}

// Loan links a book, a borrower, and the lifecycle dates. Wire names follow
// the persisted schema (fecha_prestamo, fecha_max, ...).
type Loan struct {
	ID             string          `json:"id"`
	BookID         string          `json:"libro"`
	BorrowerID     string          `json:"usuario"`
	LoanDate       time.Time       `json:"fecha_prestamo"`
	DueDate        time.Time       `json:"fecha_max"`
	ReturnDate     *time.Time      `json:"fecha_devolucion,omitempty"`
	ApprovedAt     *time.Time      `json:"fecha_aprobacion,omitempty"`
	State          LoanState       `json:"estado"`
	FixedSurcharge decimal.Decimal `json:"multa_fija"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// DaysLate returns whole days past the due date, using the return date when
// set and now otherwise. Zero when not overdue or when no due date exists.
func (l Loan) DaysLate(now time.Time) int {
	if l.DueDate.IsZero() {
		return 0
	}
	ref := now
	if l.ReturnDate != nil {
		ref = *l.ReturnDate
	}
	days := int(truncateDay(ref).Sub(truncateDay(l.DueDate)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// LateFee is the accrued late charge: days late times the daily rate, plus
// the loan's fixed surcharge.
func (l Loan) LateFee(dailyRate decimal.Decimal, now time.Time) decimal.Decimal {
	days := decimal.NewFromInt(int64(l.DaysLate(now)))
	return days.Mul(dailyRate).Add(l.FixedSurcharge)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Fine is a monetary penalty attached to a loan; at most one fine per type
// exists for a given loan.
type Fine struct {
	ID       string          `json:"id"`
	LoanID   string          `json:"prestamo"`
	Type     FineType        `json:"tipo"`
	Amount   decimal.Decimal `json:"monto"`
	Paid     bool            `json:"pagada"`
	IssuedAt time.Time       `json:"fecha"`
}

// NormalizeISBN strips hyphens and spaces and reports whether the remainder
// is a purely numeric 10- or 13-digit identifier.
func NormalizeISBN(raw string) (string, bool) {
	clean := strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if len(clean) != 10 && len(clean) != 13 {
		return clean, false
	}
	for _, r := range clean {
		if r < '0' || r > '9' {
			return clean, false
		}
	}
	return clean, true
}

// SplitAuthorName splits a single display name into (first token, remainder)
// for author lookup. The remainder falls back to a placeholder when the name
// has no second token.
func SplitAuthorName(full string) (first, remainder string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	first = parts[0]
	remainder = " "
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		remainder = strings.TrimSpace(parts[1])
	}
	return first, remainder
}

// BookMetadata is the optional prefill tuple supplied by an external catalog
// lookup. Absent or malformed responses mean no prefill, never fabricated
// data.
type BookMetadata struct {
	Title       string `json:"titulo"`
	AuthorName  string `json:"autor_nombre"`
	Description string `json:"descripcion"`
	ISBN        string `json:"isbn"`
}
