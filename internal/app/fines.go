package app

import (
	"fmt"

	"github.com/google/uuid"

	"biblioteca/pkg/domain"
	"biblioteca/pkg/store"
)

// AssessResult reports a fine assessment. AlreadyExisted is true when the
// loan already carried a fine of that type; the existing fine is returned
// unchanged.
type AssessResult struct {
	Fine           domain.Fine `json:"multa"`
	AlreadyExisted bool        `json:"ya_existia"`
}

// AssessFine attaches a fine to a loan. Late fines take the loan's accrued
// charge; the other types come from the configured schedule with a default
// fallback. Assessment is idempotent per (loan, type).
//
// Side effects on a fresh fine: a lost book permanently loses one owned
// copy; a damaged or late assessment on a loan still out closes it and puts
// the copy back on the shelf.
func (a *App) AssessFine(actor domain.Actor, loanID string, fineType domain.FineType) (AssessResult, error) {
	if !actor.IsLoanManager() {
		return AssessResult{}, fmt.Errorf("assess fine: %w", ErrForbidden)
	}
	if !domain.KnownFineType(fineType) {
		fineType = domain.FineOther
	}
	var res AssessResult
	err := a.store.Transact(func(tx store.Store) error {
		loan, ok, err := tx.GetLoan(loanID)
		if err != nil {
			return fmt.Errorf("get loan: %w", err)
		}
		if !ok {
			return fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
		}
		if loan.State == domain.LoanRejected {
			return &TransitionError{LoanID: loanID, From: loan.State, Action: "assess fine"}
		}
		if existing, ok, err := tx.FindFineByType(loanID, fineType); err != nil {
			return fmt.Errorf("find fine: %w", err)
		} else if ok {
			res = AssessResult{Fine: existing, AlreadyExisted: true}
			return nil
		}

		now := a.clock()
		amount, ok := a.policy.FineSchedule[fineType]
		if !ok {
			amount = a.policy.DefaultFine
		}
		if fineType == domain.FineLate {
			amount = loan.LateFee(a.policy.DailyLateRate, now)
		}
		fine := domain.Fine{
			ID:       uuid.NewString(),
			LoanID:   loanID,
			Type:     fineType,
			Amount:   amount,
			IssuedAt: now,
		}

		book, ok, err := tx.GetBook(loan.BookID)
		if err != nil {
			return fmt.Errorf("get book: %w", err)
		}
		if !ok {
			return fmt.Errorf("book %s: %w", loan.BookID, ErrNotFound)
		}

		switch {
		case fineType == domain.FineLost:
			book.SetTotalCopies(book.TotalCopies - 1)
			book.UpdatedAt = now
			loan.State = domain.LoanLateUnpaid
			if loan.ReturnDate == nil {
				loan.ReturnDate = &now
			}
			if err := tx.SaveBook(book); err != nil {
				return fmt.Errorf("save book: %w", err)
			}
		case (fineType == domain.FineDamaged || fineType == domain.FineLate) && loan.ReturnDate == nil:
			book.ReleaseCopy()
			book.UpdatedAt = now
			loan.ReturnDate = &now
			loan.State = domain.LoanLateUnpaid
			if err := tx.SaveBook(book); err != nil {
				return fmt.Errorf("save book: %w", err)
			}
		}
		loan.UpdatedAt = now

		if err := tx.SaveFine(fine); err != nil {
			return fmt.Errorf("save fine: %w", err)
		}
		if err := tx.SaveLoan(loan); err != nil {
			return fmt.Errorf("save loan: %w", err)
		}
		res = AssessResult{Fine: fine}
		return nil
	})
	if err != nil {
		return AssessResult{}, err
	}
	return res, nil
}

// PayFine marks a fine as paid. Once no unpaid fines remain on a loan whose
// return date is set, the loan settles into the returned state. Loans still
// out keep their state and settle through ReturnLoan.
func (a *App) PayFine(actor domain.Actor, fineID string) (domain.Fine, error) {
	if !actor.IsLoanManager() {
		return domain.Fine{}, fmt.Errorf("pay fine: %w", ErrForbidden)
	}
	var fine domain.Fine
	err := a.store.Transact(func(tx store.Store) error {
		var ok bool
		var err error
		fine, ok, err = tx.GetFine(fineID)
		if err != nil {
			return fmt.Errorf("get fine: %w", err)
		}
		if !ok {
			return fmt.Errorf("fine %s: %w", fineID, ErrNotFound)
		}
		if fine.Paid {
			return nil
		}
		fine.Paid = true
		if err := tx.SaveFine(fine); err != nil {
			return fmt.Errorf("save fine: %w", err)
		}

		remaining, err := tx.ListFinesByLoan(fine.LoanID)
		if err != nil {
			return fmt.Errorf("list fines: %w", err)
		}
		for _, f := range remaining {
			if f.ID != fine.ID && !f.Paid {
				return nil
			}
		}
		loan, ok, err := tx.GetLoan(fine.LoanID)
		if err != nil {
			return fmt.Errorf("get loan: %w", err)
		}
		if !ok {
			return nil
		}
		// Only loans whose book is back (or written off) settle here. An
		// active loan with its fines cleared stays out until it is returned.
		if loan.ReturnDate != nil && loan.State.CanTransition(domain.LoanReturned) {
			loan.State = domain.LoanReturned
			loan.UpdatedAt = a.clock()
			return tx.SaveLoan(loan)
		}
		return nil
	})
	if err != nil {
		return domain.Fine{}, err
	}
	return fine, nil
}

// ListFines returns fines visible to the actor: staff see all, clients only
// fines on their own loans. The filter is an ownership rule of the ledger,
// not a display concern.
func (a *App) ListFines(actor domain.Actor) ([]domain.Fine, error) {
	if actor.IsLoanManager() || actor.IsWarehouseOrAdmin() {
		return a.store.ListFines()
	}
	if !actor.IsClient() {
		return nil, fmt.Errorf("list fines: %w", ErrForbidden)
	}
	return a.store.ListFinesByBorrower(actor.UserID)
}
