package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from LoanState
		to   LoanState
		want bool
	}{
		{LoanRequested, LoanActive, true},
		{LoanRequested, LoanRejected, true},
		{LoanRequested, LoanReturned, false},
		{LoanActive, LoanReturned, true},
		{LoanActive, LoanLateUnpaid, true},
		{LoanActive, LoanRejected, false},
		{LoanLateUnpaid, LoanReturned, true},
		{LoanLateUnpaid, LoanActive, false},
		{LoanReturned, LoanLateUnpaid, true},
		{LoanReturned, LoanActive, false},
		{LoanRejected, LoanActive, false},
		{LoanRejected, LoanRequested, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDaysLate(t *testing.T) {
	due := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	returned := time.Date(2024, 3, 14, 8, 30, 0, 0, time.UTC)

	loan := Loan{DueDate: due}
	if got := loan.DaysLate(due.Add(-48 * time.Hour)); got != 0 {
		t.Fatalf("before due date: days = %d, want 0", got)
	}
	if got := loan.DaysLate(due); got != 0 {
		t.Fatalf("on due date: days = %d, want 0", got)
	}
	if got := loan.DaysLate(due.Add(96 * time.Hour)); got != 4 {
		t.Fatalf("four days past: days = %d, want 4", got)
	}

	loan.ReturnDate = &returned
	// Return date wins over now once set.
	if got := loan.DaysLate(due.Add(30 * 24 * time.Hour)); got != 4 {
		t.Fatalf("with return date: days = %d, want 4", got)
	}

	noDue := Loan{}
	if got := noDue.DaysLate(returned); got != 0 {
		t.Fatalf("no due date: days = %d, want 0", got)
	}
}

func TestLateFee(t *testing.T) {
	due := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	loan := Loan{DueDate: due}
	rate := decimal.RequireFromString("0.50")

	fee := loan.LateFee(rate, due.Add(4*24*time.Hour))
	if want := decimal.RequireFromString("2.00"); !fee.Equal(want) {
		t.Fatalf("fee = %s, want %s", fee, want)
	}

	loan.FixedSurcharge = decimal.RequireFromString("1.25")
	fee = loan.LateFee(rate, due.Add(4*24*time.Hour))
	if want := decimal.RequireFromString("3.25"); !fee.Equal(want) {
		t.Fatalf("fee with surcharge = %s, want %s", fee, want)
	}

	fee = loan.LateFee(rate, due.Add(-time.Hour))
	if want := decimal.RequireFromString("1.25"); !fee.Equal(want) {
		t.Fatalf("fee before due = %s, want %s", fee, want)
	}
}

func TestBookCopyAccounting(t *testing.T) {
	book := Book{TotalCopies: 2, AvailableCopies: 2, Available: true}

	if !book.ReserveCopy() {
		t.Fatalf("expected first reserve to succeed")
	}
	if !book.ReserveCopy() {
		t.Fatalf("expected second reserve to succeed")
	}
	if book.Available {
		t.Fatalf("expected book to be unavailable at zero copies")
	}
	if book.ReserveCopy() {
		t.Fatalf("expected reserve at zero copies to fail")
	}
	if book.AvailableCopies != 0 {
		t.Fatalf("availableCopies = %d, want 0", book.AvailableCopies)
	}

	book.ReleaseCopy()
	if book.AvailableCopies != 1 || !book.Available {
		t.Fatalf("after release: available = %d / %v", book.AvailableCopies, book.Available)
	}

	// Release never exceeds the owned total.
	book.ReleaseCopy()
	book.ReleaseCopy()
	if book.AvailableCopies != 2 {
		t.Fatalf("availableCopies = %d, want cap at 2", book.AvailableCopies)
	}
}

func TestSetTotalCopiesClamps(t *testing.T) {
	book := Book{TotalCopies: 5, AvailableCopies: 5, Available: true}

	book.SetTotalCopies(3)
	if book.TotalCopies != 3 || book.AvailableCopies != 3 {
		t.Fatalf("shrink: total=%d available=%d, want 3/3", book.TotalCopies, book.AvailableCopies)
	}

	book.SetTotalCopies(-2)
	if book.TotalCopies != 0 || book.AvailableCopies != 0 || book.Available {
		t.Fatalf("negative total: total=%d available=%d disponible=%v",
			book.TotalCopies, book.AvailableCopies, book.Available)
	}

	book.SetTotalCopies(4)
	if book.TotalCopies != 4 || book.AvailableCopies != 0 {
		t.Fatalf("grow: total=%d available=%d, want 4/0", book.TotalCopies, book.AvailableCopies)
	}
}

func TestActorPredicates(t *testing.T) {
	admin := Actor{Roles: []Role{RoleAdmin}}
	superuser := Actor{Superuser: true}
	librarian := Actor{Roles: []Role{RoleLibrarian}}
	warehouse := Actor{Roles: []Role{RoleWarehouse}}
	client := Actor{Roles: []Role{RoleClient}}

	if !admin.IsAdmin() || !superuser.IsAdmin() {
		t.Fatalf("expected admin and superuser to pass IsAdmin")
	}
	if librarian.IsAdmin() || warehouse.IsAdmin() || client.IsAdmin() {
		t.Fatalf("expected non-admin roles to fail IsAdmin")
	}

	if !warehouse.IsWarehouseOrAdmin() || !admin.IsWarehouseOrAdmin() {
		t.Fatalf("expected warehouse and admin to pass IsWarehouseOrAdmin")
	}
	if librarian.IsWarehouseOrAdmin() || client.IsWarehouseOrAdmin() {
		t.Fatalf("expected librarian and client to fail IsWarehouseOrAdmin")
	}

	if !librarian.IsLoanManager() || !superuser.IsLoanManager() {
		t.Fatalf("expected librarian and superuser to pass IsLoanManager")
	}
	if warehouse.IsLoanManager() || client.IsLoanManager() {
		t.Fatalf("expected warehouse and client to fail IsLoanManager")
	}

	if !client.IsClient() || admin.IsClient() {
		t.Fatalf("unexpected IsClient results")
	}
}

func TestNormalizeISBN(t *testing.T) {
	cases := []struct {
		raw   string
		clean string
		ok    bool
	}{
		{"978-0-306-40615-7", "9780306406157", true},
		{"0 306 40615 2", "0306406152", true},
		{"9780306406157", "9780306406157", true},
		{"978030640615", "978030640615", false},
		{"97803064061570", "97803064061570", false},
		{"978030640615X", "978030640615X", false},
		{"", "", false},
	}
	for _, tc := range cases {
		clean, ok := NormalizeISBN(tc.raw)
		if clean != tc.clean || ok != tc.ok {
			t.Errorf("NormalizeISBN(%q) = (%q, %v), want (%q, %v)", tc.raw, clean, ok, tc.clean, tc.ok)
		}
	}
}

func TestSplitAuthorName(t *testing.T) {
	cases := []struct {
		full      string
		first     string
		remainder string
	}{
		{"Gabriel García Márquez", "Gabriel", "García Márquez"},
		{"Borges", "Borges", " "},
		{"  Julio   Cortázar  ", "Julio", "Cortázar"},
	}
	for _, tc := range cases {
		first, remainder := SplitAuthorName(tc.full)
		if first != tc.first || remainder != tc.remainder {
			t.Errorf("SplitAuthorName(%q) = (%q, %q), want (%q, %q)",
				tc.full, first, remainder, tc.first, tc.remainder)
		}
	}
}

func TestKnownFineType(t *testing.T) {
	for _, ft := range []FineType{FineLate, FineLost, FineDamaged, FineOther} {
		if !KnownFineType(ft) {
			t.Errorf("expected %q to be known", ft)
		}
	}
	if KnownFineType("vandalism") {
		t.Fatalf("expected unknown type to be rejected")
	}
}
