package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wirebustech/wyoiwyget/internal/app/storage/memory"
)

func TestRegisterAndLogin(t *testing.T) {
	store := memory.New()
	svc := New(store, "test-secret", time.Hour, nil)

	created, err := svc.Register(context.Background(), "Shopper@Example.com", "Shopper", "hunter2secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Email != "shopper@example.com" {
		t.Fatalf("expected lowercased email, got %q", created.Email)
	}
	if created.Role != "customer" {
		t.Fatalf("expected customer role, got %q", created.Role)
	}
	if created.PasswordHash == "hunter2secret" {
		t.Fatal("password stored unhashed")
	}

	u, token, err := svc.Login(context.Background(), "shopper@example.com", "hunter2secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.ID != created.ID {
		t.Fatalf("login returned wrong user %s", u.ID)
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Subject != created.ID {
		t.Fatalf("token subject %q, want %q", claims.Subject, created.ID)
	}
	if claims.Role != "customer" {
		t.Fatalf("token role %q, want customer", claims.Role)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil)

	if _, err := svc.Register(context.Background(), "not-an-email", "x", "hunter2secret"); err == nil {
		t.Fatal("expected error for invalid email")
	}
	if _, err := svc.Register(context.Background(), "a@b.com", "x", "short"); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil)

	if _, err := svc.Register(context.Background(), "a@b.com", "first", "hunter2secret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(context.Background(), "a@b.com", "second", "hunter2secret")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil)
	if _, err := svc.Register(context.Background(), "a@b.com", "x", "hunter2secret"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(context.Background(), "a@b.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody@b.com", "hunter2secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	store := memory.New()
	svc := New(store, "test-secret", time.Hour, nil)
	u, err := svc.Register(context.Background(), "a@b.com", "x", "hunter2secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := svc.IssueToken(u)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	other := New(store, "different-secret", time.Hour, nil)
	if _, err := other.VerifyToken(token); err == nil {
		t.Fatal("expected verification failure with different secret")
	}
}

func TestChangePassword(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil)
	u, err := svc.Register(context.Background(), "a@b.com", "x", "hunter2secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), u.ID, "wrong", "newpassword1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), u.ID, "hunter2secret", "newpassword1"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "a@b.com", "newpassword1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
