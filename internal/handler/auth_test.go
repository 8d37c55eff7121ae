package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/tabledine/api/internal/auth"
	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
)

const testSecret = "test-secret"

// mockTx satisfies pgx.Tx for the methods handlers use; anything else panics
// through the embedded nil interface.
type mockTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (m *mockTx) Commit(ctx context.Context) error   { m.committed = true; return nil }
func (m *mockTx) Rollback(ctx context.Context) error { m.rolledBack = true; return nil }

type mockTxBeginner struct {
	tx *mockTx
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, nil
}

// mockAuthStore implements AuthStore with configurable behavior.
type mockAuthStore struct {
	createUserFn         func(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	getUserByEmailFn     func(ctx context.Context, email string) (database.User, error)
	createSubscriptionFn func(ctx context.Context, arg database.CreateSubscriptionParams) (database.Subscription, error)
}

func (m *mockAuthStore) CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
	return m.createUserFn(ctx, arg)
}
func (m *mockAuthStore) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	return m.getUserByEmailFn(ctx, email)
}
func (m *mockAuthStore) CreateSubscription(ctx context.Context, arg database.CreateSubscriptionParams) (database.Subscription, error) {
	return m.createSubscriptionFn(ctx, arg)
}

func newTestAuthHandler(store *mockAuthStore, tx *mockTx) *AuthHandler {
	return NewAuthHandler(store, &mockTxBeginner{tx: tx}, func(db database.DBTX) AuthStore {
		return store
	}, testSecret)
}

type testEnvelope struct {
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
}

func postJSON(t *testing.T, h http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSignup_CreatesOwnerWithTrial(t *testing.T) {
	var capturedUser database.CreateUserParams
	var capturedSub database.CreateSubscriptionParams
	tx := &mockTx{}
	store := &mockAuthStore{
		createUserFn: func(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
			capturedUser = arg
			return database.User{ID: uuid.New(), Email: arg.Email, FullName: arg.FullName, Role: arg.Role}, nil
		},
		createSubscriptionFn: func(ctx context.Context, arg database.CreateSubscriptionParams) (database.Subscription, error) {
			capturedSub = arg
			return database.Subscription{ID: uuid.New(), UserID: arg.UserID}, nil
		},
	}

	h := newTestAuthHandler(store, tx)
	rec := postJSON(t, h.Signup, signupRequest{
		FullName: "Asha Rao",
		Email:    "Asha@Example.com",
		Password: "supersecret",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body)
	}
	if !tx.committed {
		t.Error("signup must commit the transaction")
	}

	if capturedUser.Email != "asha@example.com" {
		t.Errorf("email should be lowercased, got %q", capturedUser.Email)
	}
	if capturedUser.Role != enum.UserRoleOwner {
		t.Errorf("role: got %q, want OWNER", capturedUser.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(capturedUser.HashedPassword), []byte("supersecret")); err != nil {
		t.Error("stored password hash does not verify")
	}

	if !capturedSub.IsTrial || !capturedSub.IsSubscriptionActive {
		t.Error("signup must open an active trial subscription")
	}
	if capturedSub.Plan.String != enum.PlanStarter {
		t.Errorf("plan: got %q, want STARTER", capturedSub.Plan.String)
	}
	wantExpiry := time.Now().Add(trialPeriod)
	if got := capturedSub.TrialExpiresAt.Time; got.Before(wantExpiry.Add(-time.Minute)) || got.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("trial expiry %v not within a minute of %v", got, wantExpiry)
	}

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.Success || env.Status != http.StatusCreated {
		t.Errorf("envelope: success=%v status=%d", env.Success, env.Status)
	}
	var resp authResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.Token == "" {
		t.Error("response should carry a token")
	}
}

func TestSignup_Validation(t *testing.T) {
	store := &mockAuthStore{
		createUserFn: func(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
			t.Error("create must not run for invalid input")
			return database.User{}, nil
		},
	}

	h := newTestAuthHandler(store, &mockTx{})
	rec := postJSON(t, h.Signup, signupRequest{
		FullName: "",
		Email:    "not-an-email",
		Password: "short",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var body errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success {
		t.Error("error envelope must have success=false")
	}
	if len(body.Errors) != 3 {
		t.Errorf("expected 3 validation details, got %d: %v", len(body.Errors), body.Errors)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	tx := &mockTx{}
	store := &mockAuthStore{
		createUserFn: func(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
			return database.User{}, &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
		},
	}

	h := newTestAuthHandler(store, tx)
	rec := postJSON(t, h.Signup, signupRequest{
		FullName: "Asha Rao",
		Email:    "asha@example.com",
		Password: "supersecret",
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
	if tx.committed {
		t.Error("failed signup must not commit")
	}
}

func TestLogin(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	user := database.User{
		ID:             uuid.New(),
		Email:          "asha@example.com",
		HashedPassword: string(hashed),
		FullName:       "Asha Rao",
		Role:           enum.UserRoleOwner,
	}
	store := &mockAuthStore{
		getUserByEmailFn: func(ctx context.Context, email string) (database.User, error) {
			if email == user.Email {
				return user, nil
			}
			return database.User{}, pgx.ErrNoRows
		},
	}
	h := newTestAuthHandler(store, &mockTx{})

	rec := postJSON(t, h.Login, loginRequest{Email: "nobody@example.com", Password: "whatever"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: got %d, want 401", rec.Code)
	}

	rec = postJSON(t, h.Login, loginRequest{Email: "asha@example.com", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: got %d, want 401", rec.Code)
	}

	rec = postJSON(t, h.Login, loginRequest{Email: "Asha@example.com", Password: "correct-horse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d, want 200 (body %s)", rec.Code, rec.Body)
	}

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var resp authResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	claims, err := auth.ValidateToken(testSecret, resp.Token)
	if err != nil {
		t.Fatalf("returned token does not validate: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != enum.UserRoleOwner {
		t.Errorf("claims: got user %s role %s", claims.UserID, claims.Role)
	}
}
