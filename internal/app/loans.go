package app

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"biblioteca/pkg/domain"
	"biblioteca/pkg/store"
)

// RequestLoan starts a loan. A loan manager checks the book out immediately
// (the copy is reserved on the spot); a client files a request that reserves
// nothing until approval, so unconfirmed requests cannot starve availability.
// Either way a book with zero available copies is refused up front.
func (a *App) RequestLoan(actor domain.Actor, bookID, borrowerID string) (domain.Loan, error) {
	staff := actor.IsLoanManager()
	if !staff {
		if !actor.IsClient() {
			return domain.Loan{}, fmt.Errorf("request loan: %w", ErrForbidden)
		}
		// Clients may only borrow for themselves.
		borrowerID = actor.UserID
	}
	if borrowerID == "" {
		return domain.Loan{}, fmt.Errorf("borrower required")
	}

	var loan domain.Loan
	err := a.store.Transact(func(tx store.Store) error {
		book, ok, err := tx.GetBook(bookID)
		if err != nil {
			return fmt.Errorf("get book: %w", err)
		}
		if !ok {
			return fmt.Errorf("book %s: %w", bookID, ErrNotFound)
		}
		if book.AvailableCopies <= 0 {
			return fmt.Errorf("book %s: %w", bookID, ErrOutOfStock)
		}

		now := a.clock()
		loan = domain.Loan{
			ID:         uuid.NewString(),
			BookID:     bookID,
			BorrowerID: borrowerID,
			LoanDate:   now,
			State:      domain.LoanRequested,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if staff {
			if !book.ReserveCopy() {
				return fmt.Errorf("book %s: %w", bookID, ErrOutOfStock)
			}
			approved := now
			loan.State = domain.LoanActive
			loan.ApprovedAt = &approved
			loan.DueDate = now.Add(a.policy.GracePeriod)
			if err := tx.SaveBook(book); err != nil {
				return fmt.Errorf("save book: %w", err)
			}
		}
		return tx.SaveLoan(loan)
	})
	if err != nil {
		return domain.Loan{}, err
	}
	return loan, nil
}

// ApproveLoan activates a requested loan. Availability is re-checked here:
// stock may have run out since the request was filed, in which case the loan
// stays requested and the operator is told, not silently refused.
func (a *App) ApproveLoan(actor domain.Actor, loanID string) (domain.Loan, error) {
	if !actor.IsLoanManager() {
		return domain.Loan{}, fmt.Errorf("approve loan: %w", ErrForbidden)
	}
	var loan domain.Loan
	err := a.store.Transact(func(tx store.Store) error {
		var ok bool
		var err error
		loan, ok, err = tx.GetLoan(loanID)
		if err != nil {
			return fmt.Errorf("get loan: %w", err)
		}
		if !ok {
			return fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
		}
		if !loan.State.CanTransition(domain.LoanActive) {
			return &TransitionError{LoanID: loanID, From: loan.State, Action: "approve"}
		}
		book, ok, err := tx.GetBook(loan.BookID)
		if err != nil {
			return fmt.Errorf("get book: %w", err)
		}
		if !ok {
			return fmt.Errorf("book %s: %w", loan.BookID, ErrNotFound)
		}
		if !book.ReserveCopy() {
			return fmt.Errorf("book %s: %w", loan.BookID, ErrOutOfStock)
		}

		now := a.clock()
		loan.State = domain.LoanActive
		loan.ApprovedAt = &now
		loan.DueDate = now.Add(a.policy.GracePeriod)
		loan.UpdatedAt = now
		if err := tx.SaveBook(book); err != nil {
			return fmt.Errorf("save book: %w", err)
		}
		return tx.SaveLoan(loan)
	})
	if err != nil {
		return domain.Loan{}, err
	}
	return loan, nil
}

// RejectLoan declines a requested loan. No inventory was reserved, so none
// is released.
func (a *App) RejectLoan(actor domain.Actor, loanID string) (domain.Loan, error) {
	if !actor.IsLoanManager() {
		return domain.Loan{}, fmt.Errorf("reject loan: %w", ErrForbidden)
	}
	var loan domain.Loan
	err := a.store.Transact(func(tx store.Store) error {
		var ok bool
		var err error
		loan, ok, err = tx.GetLoan(loanID)
		if err != nil {
			return fmt.Errorf("get loan: %w", err)
		}
		if !ok {
			return fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
		}
		if !loan.State.CanTransition(domain.LoanRejected) {
			return &TransitionError{LoanID: loanID, From: loan.State, Action: "reject"}
		}
		loan.State = domain.LoanRejected
		loan.UpdatedAt = a.clock()
		return tx.SaveLoan(loan)
	})
	if err != nil {
		return domain.Loan{}, err
	}
	return loan, nil
}

// ReturnResult reports the outcome of a return, including the late fine when
// one was created or reused.
type ReturnResult struct {
	Loan            domain.Loan  `json:"prestamo"`
	Fine            *domain.Fine `json:"multa,omitempty"`
	AlreadyReturned bool         `json:"ya_devuelto"`
}

// ReturnLoan records a return: the copy goes back on the shelf and, when the
// loan is overdue, a late fine is created or the existing one reported.
// Returning twice never duplicates a fine or double-increments stock.
func (a *App) ReturnLoan(actor domain.Actor, loanID string) (ReturnResult, error) {
	if !actor.IsLoanManager() {
		return ReturnResult{}, fmt.Errorf("return loan: %w", ErrForbidden)
	}
	var res ReturnResult
	err := a.store.Transact(func(tx store.Store) error {
		loan, ok, err := tx.GetLoan(loanID)
		if err != nil {
			return fmt.Errorf("get loan: %w", err)
		}
		if !ok {
			return fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
		}
		if loan.ReturnDate != nil {
			res = ReturnResult{Loan: loan, AlreadyReturned: true}
			if fine, ok, err := tx.FindFineByType(loanID, domain.FineLate); err != nil {
				return fmt.Errorf("find fine: %w", err)
			} else if ok {
				res.Fine = &fine
			}
			return nil
		}
		if loan.State != domain.LoanActive {
			return &TransitionError{LoanID: loanID, From: loan.State, Action: "return"}
		}
		book, ok, err := tx.GetBook(loan.BookID)
		if err != nil {
			return fmt.Errorf("get book: %w", err)
		}
		if !ok {
			return fmt.Errorf("book %s: %w", loan.BookID, ErrNotFound)
		}

		now := a.clock()
		loan.ReturnDate = &now
		loan.UpdatedAt = now
		book.ReleaseCopy()
		book.UpdatedAt = now

		res = ReturnResult{}
		if loan.DaysLate(now) > 0 {
			loan.State = domain.LoanLateUnpaid
			fine, existed, err := tx.FindFineByType(loanID, domain.FineLate)
			if err != nil {
				return fmt.Errorf("find fine: %w", err)
			}
			if !existed {
				fine = domain.Fine{
					ID:       uuid.NewString(),
					LoanID:   loanID,
					Type:     domain.FineLate,
					Amount:   loan.LateFee(a.policy.DailyLateRate, now),
					IssuedAt: now,
				}
				if err := tx.SaveFine(fine); err != nil {
					return fmt.Errorf("save fine: %w", err)
				}
			}
			res.Fine = &fine
		} else {
			loan.State = domain.LoanReturned
		}
		res.Loan = loan

		if err := tx.SaveBook(book); err != nil {
			return fmt.Errorf("save book: %w", err)
		}
		return tx.SaveLoan(loan)
	})
	if err != nil {
		return ReturnResult{}, err
	}
	return res, nil
}

// ListLoans returns loans visible to the actor: loan managers see everything,
// clients only their own.
func (a *App) ListLoans(actor domain.Actor) ([]domain.Loan, error) {
	if actor.IsLoanManager() {
		return a.store.ListLoans()
	}
	if !actor.IsClient() {
		return nil, fmt.Errorf("list loans: %w", ErrForbidden)
	}
	return a.store.ListLoansByBorrower(actor.UserID)
}

// LoanView is a loan together with its derived lateness figures.
type LoanView struct {
	domain.Loan
	DaysLate   int             `json:"dias_retraso"`
	AccruedFee decimal.Decimal `json:"multa_total"`
}

// LoanDetail returns one loan with days late and the accrued late charge
// computed against the current clock.
func (a *App) LoanDetail(actor domain.Actor, loanID string) (LoanView, error) {
	loan, err := a.GetLoan(actor, loanID)
	if err != nil {
		return LoanView{}, err
	}
	now := a.clock()
	return LoanView{
		Loan:       loan,
		DaysLate:   loan.DaysLate(now),
		AccruedFee: loan.LateFee(a.policy.DailyLateRate, now),
	}, nil
}

// GetLoan returns one loan; clients may only see their own.
func (a *App) GetLoan(actor domain.Actor, loanID string) (domain.Loan, error) {
	loan, ok, err := a.store.GetLoan(loanID)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("get loan: %w", err)
	}
	if !ok {
		return domain.Loan{}, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}
	if !actor.IsLoanManager() && loan.BorrowerID != actor.UserID {
		return domain.Loan{}, fmt.Errorf("get loan: %w", ErrForbidden)
	}
	return loan, nil
}

// DeleteLoan removes a loan record unless fines still reference it.
func (a *App) DeleteLoan(actor domain.Actor, loanID string) error {
	if !actor.IsLoanManager() {
		return fmt.Errorf("delete loan: %w", ErrForbidden)
	}
	return a.store.Transact(func(tx store.Store) error {
		if _, ok, err := tx.GetLoan(loanID); err != nil {
			return fmt.Errorf("get loan: %w", err)
		} else if !ok {
			return fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
		}
		if hasFines, err := tx.LoanHasFines(loanID); err != nil {
			return fmt.Errorf("check fines: %w", err)
		} else if hasFines {
			return fmt.Errorf("loan %s has dependent fines: %w", loanID, ErrReferentialConflict)
		}
		return tx.DeleteLoan(loanID)
	})
}
