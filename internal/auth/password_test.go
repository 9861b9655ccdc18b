package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
)

func setupAuthenticator(t *testing.T) (*PasswordAuthenticator, *memory.Store) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	a := NewPasswordAuthenticator(store)
	a.cost = 4 // bcrypt.MinCost keeps tests fast
	return a, store
}

func TestRegister(t *testing.T) {
	a, store := setupAuthenticator(t)
	ctx := context.Background()

	user, err := a.Register(ctx, "  Alice@Example.COM ", "Alice", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("expected lower-cased email, got %q", user.Email)
	}
	if user.Name != "Alice" {
		t.Errorf("expected name Alice, got %q", user.Name)
	}
	if user.MonthlyLimit == nil || *user.MonthlyLimit != 0 {
		t.Errorf("expected monthly limit 0, got %v", user.MonthlyLimit)
	}

	doc, err := store.Get(ctx, storage.DocPath(storage.UsersCollection, user.ID))
	if err != nil || doc == nil {
		t.Fatalf("user document missing: %v", err)
	}
	stored := storage.DecodeUser(*doc)
	if stored.AvatarURL == "" {
		t.Error("expected avatar to be provisioned")
	}
	if _, ok := doc.Fields.GetFields()["passwordHash"]; ok {
		t.Error("password hash must not be stored on the user document")
	}

	credDoc, err := store.Get(ctx, storage.DocPath(storage.CredentialsCollection, user.ID))
	if err != nil || credDoc == nil {
		t.Fatalf("credential document missing: %v", err)
	}
	cred := storage.DecodeCredential(*credDoc)
	if cred.PasswordHash == "" || cred.PasswordHash == "password123" {
		t.Errorf("expected hashed password, got %q", cred.PasswordHash)
	}
}

func TestRegisterDefaultsName(t *testing.T) {
	a, _ := setupAuthenticator(t)
	user, err := a.Register(context.Background(), "anon@example.com", "  ", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Name != DefaultDisplayName {
		t.Errorf("expected %q, got %q", DefaultDisplayName, user.Name)
	}
}

func TestRegisterErrors(t *testing.T) {
	a, _ := setupAuthenticator(t)
	ctx := context.Background()
	if _, err := a.Register(ctx, "bob@example.com", "Bob", "password123"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"weak password", "carol@example.com", "short", ErrWeakPassword},
		{"bad email", "carol", "password123", ErrInvalidEmail},
		{"duplicate email", "BOB@example.com", "password123", ErrEmailExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Register(ctx, tt.email, "Someone", tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	a, store := setupAuthenticator(t)
	ctx := context.Background()
	registered, err := a.Register(ctx, "dave@example.com", "Dave", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	user, err := a.Authenticate(ctx, "Dave@Example.com", "password123")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.ID != registered.ID {
		t.Errorf("expected user %s, got %s", registered.ID, user.ID)
	}

	if _, err := a.Authenticate(ctx, "dave@example.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := a.Authenticate(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	t.Run("reprovisions a missing user document", func(t *testing.T) {
		if err := store.Delete(ctx, storage.DocPath(storage.UsersCollection, registered.ID)); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		user, err := a.Authenticate(ctx, "dave@example.com", "password123")
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if user.ID != registered.ID || user.Name != DefaultDisplayName {
			t.Errorf("unexpected user %+v", user)
		}
		doc, err := store.Get(ctx, storage.DocPath(storage.UsersCollection, registered.ID))
		if err != nil || doc == nil {
			t.Fatalf("user document not recreated: %v", err)
		}
	})
}
