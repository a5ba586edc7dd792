package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"biblioteca/internal/app"
	"biblioteca/pkg/domain"
	"biblioteca/pkg/store"
)

type testEnv struct {
	app        *app.App
	handler    http.Handler
	adminToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	a, err := app.New(app.Config{
		Store:     store.NewMemoryStore(),
		JWTSecret: "test-secret",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	// First registered account is the admin.
	_, token, err := a.Register("admin", "s3cret")
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	srv := New(Config{App: a})
	return &testEnv{app: a, handler: srv.Router(), adminToken: token}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func (e *testEnv) seedBook(t *testing.T, copies int) domain.Book {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/authors", e.adminToken, map[string]string{
		"nombre": "Gabriel", "apellido": "García Márquez",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create author: status %d body %s", rec.Code, rec.Body.String())
	}
	author := decodeBody[domain.Author](t, rec)

	rec = e.do(t, http.MethodPost, "/books", e.adminToken, map[string]any{
		"titulo":         "Cien años de soledad",
		"autor":          author.ID,
		"isbn":           "978-0-306-40615-7",
		"cantidad_total": copies,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create book: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[domain.Book](t, rec)
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/books", "/loans", "/fines", "/me"} {
		rec := e.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d, want 401", path, rec.Code)
		}
	}
	rec := e.do(t, http.MethodGet, "/books", "bogus-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token: status = %d, want 401", rec.Code)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "lector", "password": "s3cret",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/login", "", map[string]string{
		"username": "lector", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: status = %d, want 401", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/login", "", map[string]string{
		"username": "lector", "password": "s3cret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	session := decodeBody[sessionResponse](t, rec)

	rec = e.do(t, http.MethodGet, "/me", session.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status = %d", rec.Code)
	}
	me := decodeBody[domain.User](t, rec)
	if me.Username != "lector" {
		t.Fatalf("me = %q, want lector", me.Username)
	}
}

func TestBookEndpointsStatusMapping(t *testing.T) {
	e := newTestEnv(t)
	book := e.seedBook(t, 1)

	// Duplicate identifier conflicts.
	rec := e.do(t, http.MethodPost, "/books", e.adminToken, map[string]any{
		"titulo": "Otro", "autor": book.AuthorID, "isbn": "9780306406157",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate isbn: status = %d, want 409", rec.Code)
	}

	// Malformed identifier is a client error.
	rec = e.do(t, http.MethodPost, "/books", e.adminToken, map[string]any{
		"titulo": "Otro", "autor": book.AuthorID, "isbn": "abc",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid isbn: status = %d, want 400", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/books/"+book.ID, e.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get book: status = %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/books/missing", e.adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing book: status = %d, want 404", rec.Code)
	}

	// A client may browse but not create.
	clientRec := e.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "lector", "password": "s3cret",
	})
	clientSession := decodeBody[sessionResponse](t, clientRec)
	rec = e.do(t, http.MethodPost, "/books", clientSession.Token, map[string]any{
		"titulo": "Otro", "autor": book.AuthorID, "isbn": "9961568653",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("client create book: status = %d, want 403", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/books?disponibles=true", clientSession.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("client list books: status = %d", rec.Code)
	}
	books := decodeBody[[]domain.Book](t, rec)
	if len(books) != 1 {
		t.Fatalf("available books = %d, want 1", len(books))
	}
}

func TestLoanFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	book := e.seedBook(t, 1)

	clientRec := e.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "lector", "password": "s3cret",
	})
	clientSession := decodeBody[sessionResponse](t, clientRec)

	rec := e.do(t, http.MethodPost, "/loans", clientSession.Token, map[string]string{
		"libro": book.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("request loan: status %d body %s", rec.Code, rec.Body.String())
	}
	loan := decodeBody[domain.Loan](t, rec)
	if loan.State != domain.LoanRequested {
		t.Fatalf("state = %q, want requested", loan.State)
	}

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/loans/%s/approve", loan.ID), clientSession.Token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("client approve: status = %d, want 403", rec.Code)
	}

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/loans/%s/approve", loan.ID), e.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status %d body %s", rec.Code, rec.Body.String())
	}
	approved := decodeBody[domain.Loan](t, rec)
	if approved.State != domain.LoanActive {
		t.Fatalf("state = %q, want active", approved.State)
	}

	// The stock is gone, so a second request is refused.
	rec = e.do(t, http.MethodPost, "/loans", clientSession.Token, map[string]string{
		"libro": book.ID,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("out of stock: status = %d, want 422", rec.Code)
	}

	// Approving again is an invalid transition.
	rec = e.do(t, http.MethodPost, fmt.Sprintf("/loans/%s/approve", loan.ID), e.adminToken, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("double approve: status = %d, want 422", rec.Code)
	}

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/loans/%s/return", loan.ID), e.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("return: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/loans", clientSession.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list loans: status = %d", rec.Code)
	}
	loans := decodeBody[[]domain.Loan](t, rec)
	if len(loans) != 1 {
		t.Fatalf("client sees %d loans, want 1", len(loans))
	}
}

func TestFineEndpoints(t *testing.T) {
	e := newTestEnv(t)
	book := e.seedBook(t, 1)

	rec := e.do(t, http.MethodPost, "/loans", e.adminToken, map[string]string{
		"libro": book.ID, "usuario": "reader-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: status %d body %s", rec.Code, rec.Body.String())
	}
	loan := decodeBody[domain.Loan](t, rec)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/loans/%s/fines", loan.ID), e.adminToken, map[string]string{
		"tipo": "damaged",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assess fine: status %d body %s", rec.Code, rec.Body.String())
	}
	assessed := decodeBody[app.AssessResult](t, rec)

	// A repeat assessment reports the existing fine instead of creating one.
	rec = e.do(t, http.MethodPost, fmt.Sprintf("/loans/%s/fines", loan.ID), e.adminToken, map[string]string{
		"tipo": "damaged",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat assess: status = %d, want 200", rec.Code)
	}

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/fines/%s/pay", assessed.Fine.ID), e.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay fine: status %d body %s", rec.Code, rec.Body.String())
	}
	paid := decodeBody[domain.Fine](t, rec)
	if !paid.Paid {
		t.Fatalf("expected fine to be paid")
	}

	rec = e.do(t, http.MethodPost, "/fines/missing/pay", e.adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pay missing fine: status = %d, want 404", rec.Code)
	}
}
