package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockAuthStore struct {
	users      map[string]*domain.User
	emailIndex map[string]string
	creds      map[string]*domain.AuthCredential
	refresh    map[string]*domain.AuthRefreshToken
	resetCodes map[string]*domain.AuthPasswordResetCode
}

func newMockAuthStore() *mockAuthStore {
	return &mockAuthStore{
		users:      map[string]*domain.User{},
		emailIndex: map[string]string{},
		creds:      map[string]*domain.AuthCredential{},
		refresh:    map[string]*domain.AuthRefreshToken{},
		resetCodes: map[string]*domain.AuthPasswordResetCode{},
	}
}

func (m *mockAuthStore) GetUserByID(_ context.Context, userID string) (*domain.User, error) {
	return m.users[userID], nil
}

func (m *mockAuthStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	id, ok := m.emailIndex[email]
	if !ok {
		return nil, nil
	}
	return m.users[id], nil
}

func (m *mockAuthStore) CreateUser(_ context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.RegisterResponse, error) {
	id := fmt.Sprintf("user-%d", len(m.users)+1)
	m.users[id] = &domain.User{
		ID:       id,
		Email:    req.Email,
		FullName: req.FullName,
		IsActive: true,
	}
	m.emailIndex[req.Email] = id
	m.creds[id] = &domain.AuthCredential{ID: "cred-" + id, UserID: id, PasswordHash: passwordHash}
	return &domain.RegisterResponse{UserID: id, Message: "account created"}, nil
}

func (m *mockAuthStore) GetCredentials(_ context.Context, userID string) (*domain.AuthCredential, error) {
	c, ok := m.creds[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "credentials", ID: userID}
	}
	return c, nil
}

func (m *mockAuthStore) UpdateCredentials(_ context.Context, userID string, updates map[string]any) error {
	c, ok := m.creds[userID]
	if !ok {
		return &domain.ErrNotFound{Resource: "credentials", ID: userID}
	}
	if v, ok := updates["password_hash"].(string); ok {
		c.PasswordHash = v
	}
	if v, ok := updates["failed_attempts"].(int); ok {
		c.FailedAttempts = v
	}
	if v, present := updates["locked_until"]; present {
		if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return err
			}
			c.LockedUntil = &t
		} else {
			c.LockedUntil = nil
		}
	}
	return nil
}

func (m *mockAuthStore) StoreRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.refresh[tokenHash] = &domain.AuthRefreshToken{
		ID:        fmt.Sprintf("rt-%d", len(m.refresh)+1),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (m *mockAuthStore) GetRefreshToken(_ context.Context, tokenHash string) (*domain.AuthRefreshToken, error) {
	t, ok := m.refresh[tokenHash]
	if !ok || t.Revoked {
		return nil, nil
	}
	return t, nil
}

func (m *mockAuthStore) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	if t, ok := m.refresh[tokenHash]; ok {
		t.Revoked = true
	}
	return nil
}

func (m *mockAuthStore) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	for _, t := range m.refresh {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthStore) StoreResetCode(_ context.Context, userID, code string, expiresAt time.Time) error {
	id := fmt.Sprintf("code-%d", len(m.resetCodes)+1)
	m.resetCodes[id] = &domain.AuthPasswordResetCode{
		ID:        id,
		UserID:    userID,
		Code:      code,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (m *mockAuthStore) GetValidResetCode(_ context.Context, userID, code string) (*domain.AuthPasswordResetCode, error) {
	for _, c := range m.resetCodes {
		if c.UserID == userID && c.Code == code && !c.Used && c.ExpiresAt.After(time.Now()) {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockAuthStore) MarkResetCodeUsed(_ context.Context, codeID string) error {
	if c, ok := m.resetCodes[codeID]; ok {
		c.Used = true
	}
	return nil
}

func newAuthService(store *mockAuthStore) *service.AuthService {
	return service.NewAuthService(store, "test-secret", 15*time.Minute, 7*24*time.Hour, zap.NewNop())
}

func registerUser(t *testing.T, svc *service.AuthService, email, password string) string {
	t.Helper()
	resp, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email:    email,
		FullName: "Test User",
		Password: password,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return resp.UserID
}

// --- Tests ---

func TestRegister_Validation(t *testing.T) {
	svc := newAuthService(newMockAuthStore())

	tests := []struct {
		name string
		req  *domain.RegisterRequest
	}{
		{"missing email", &domain.RegisterRequest{Password: "longenough"}},
		{"bad email", &domain.RegisterRequest{Email: "not-an-email", Password: "longenough"}},
		{"short password", &domain.RegisterRequest{Email: "a@b.com", Password: "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			var valErr *domain.ErrValidation
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newAuthService(newMockAuthStore())
	registerUser(t, svc, "dup@example.com", "password123")

	_, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email:    "DUP@example.com", // normalization catches case differences
		Password: "password123",
	})
	var confErr *domain.ErrConflict
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestLogin_IssuesValidAccessToken(t *testing.T) {
	svc := newAuthService(newMockAuthStore())
	userID := registerUser(t, svc, "login@example.com", "password123")

	resp, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "login@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.UserID != userID {
		t.Errorf("expected user %q, got %q", userID, resp.UserID)
	}
	if resp.RefreshToken == "" {
		t.Error("expected a refresh token")
	}

	claims, err := svc.ValidateAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if claims.Sub != userID || claims.Type != "access" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestLogin_WrongPasswordLocksAccount(t *testing.T) {
	store := newMockAuthStore()
	svc := newAuthService(store)
	userID := registerUser(t, svc, "lock@example.com", "password123")

	for i := 0; i < 5; i++ {
		_, err := svc.Login(context.Background(), &domain.LoginRequest{
			Email:    "lock@example.com",
			Password: "wrong-password",
		})
		var authErr *domain.ErrUnauthorized
		if !errors.As(err, &authErr) {
			t.Fatalf("attempt %d: expected ErrUnauthorized, got %v", i+1, err)
		}
	}

	if store.creds[userID].LockedUntil == nil {
		t.Fatal("expected account locked after max failed attempts")
	}

	// Correct password is rejected while the lock holds.
	_, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "lock@example.com",
		Password: "password123",
	})
	var authErr *domain.ErrUnauthorized
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrUnauthorized while locked, got %v", err)
	}
	if !strings.Contains(authErr.Message, "locked") {
		t.Errorf("expected lock message, got %q", authErr.Message)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc := newAuthService(newMockAuthStore())
	registerUser(t, svc, "rotate@example.com", "password123")

	login, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "rotate@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Error("expected a new refresh token after rotation")
	}

	// The used token must be dead.
	_, err = svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	var authErr *domain.ErrUnauthorized
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrUnauthorized for a rotated token, got %v", err)
	}
}

func TestLogout_RevokesAllTokens(t *testing.T) {
	svc := newAuthService(newMockAuthStore())
	userID := registerUser(t, svc, "logout@example.com", "password123")

	login, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "logout@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(context.Background(), userID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	_, err = svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	var authErr *domain.ErrUnauthorized
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
}

func TestPasswordReset_FullFlow(t *testing.T) {
	store := newMockAuthStore()
	svc := newAuthService(store)
	userID := registerUser(t, svc, "reset@example.com", "password123")

	resp, err := svc.PasswordResetRequest(context.Background(), &domain.PasswordResetRequestBody{
		Email: "reset@example.com",
	})
	if err != nil {
		t.Fatalf("reset request: %v", err)
	}
	if !strings.Contains(resp.MaskedEmail, "@") || resp.MaskedEmail == "reset@example.com" {
		t.Errorf("expected a masked email, got %q", resp.MaskedEmail)
	}

	var code string
	for _, c := range store.resetCodes {
		if c.UserID == userID {
			code = c.Code
		}
	}
	if code == "" {
		t.Fatal("expected a stored reset code")
	}

	if err := svc.PasswordResetConfirm(context.Background(), &domain.PasswordResetConfirmRequest{
		Email:            "reset@example.com",
		VerificationCode: code,
		NewPassword:      "brand-new-password",
	}); err != nil {
		t.Fatalf("reset confirm: %v", err)
	}

	if _, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "reset@example.com",
		Password: "brand-new-password",
	}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	// The code is single-use.
	err = svc.PasswordResetConfirm(context.Background(), &domain.PasswordResetConfirmRequest{
		Email:            "reset@example.com",
		VerificationCode: code,
		NewPassword:      "another-password",
	})
	var codeErr *domain.ErrInvalidCode
	if !errors.As(err, &codeErr) {
		t.Fatalf("expected ErrInvalidCode on reuse, got %v", err)
	}
}

func TestPasswordResetRequest_UnknownEmailDoesNotLeak(t *testing.T) {
	svc := newAuthService(newMockAuthStore())

	resp, err := svc.PasswordResetRequest(context.Background(), &domain.PasswordResetRequestBody{
		Email: "nobody@example.com",
	})
	if err != nil {
		t.Fatalf("expected no error for unknown email, got %v", err)
	}
	if resp.Message == "" {
		t.Error("expected a generic success message")
	}
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	svc := newAuthService(newMockAuthStore())
	userID := registerUser(t, svc, "change@example.com", "password123")

	err := svc.ChangePassword(context.Background(), userID, &domain.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "new-password-1",
	})
	var authErr *domain.ErrUnauthorized
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
