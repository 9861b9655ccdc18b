package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// DefaultDisplayName is used when registration provides no name.
const DefaultDisplayName = "Anonymous"

// PasswordAuthenticator implements password-based authentication using bcrypt.
// Password hashes live in the credentials collection, apart from the user
// directory that every session subscribes to.
type PasswordAuthenticator struct {
	store storage.Store
	cost  int

	// Serializes the email uniqueness check with the write that follows it.
	registerMu sync.Mutex
}

// NewPasswordAuthenticator creates a new password-based authenticator.
func NewPasswordAuthenticator(store storage.Store) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		store: store,
		cost:  bcrypt.DefaultCost,
	}
}

// ValidateCredential checks if the password meets minimum requirements.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// Register creates the credential and the user document for a new account.
func (a *PasswordAuthenticator) Register(ctx context.Context, email, displayName, credential string) (*models.User, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	// Validate password strength
	if err := a.ValidateCredential(credential); err != nil {
		return nil, err
	}

	a.registerMu.Lock()
	defer a.registerMu.Unlock()

	existing, err := a.store.QueryOnce(ctx, storage.CredentialsCollection, storage.EmailField, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	userID := uuid.New().String()
	cred := storage.Credential{
		UserID:       userID,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now().Unix(),
	}
	if err := a.store.Set(ctx, storage.DocPath(storage.CredentialsCollection, userID), storage.CredentialFields(cred)); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	user, err := a.provision(ctx, userID, email, displayName)
	if err != nil {
		return nil, err
	}
	slog.Info("User registered", "user_id", userID)
	return user, nil
}

// Authenticate verifies the email and password, returning the user if valid.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, credential string) (*models.User, error) {
	email = normalizeEmail(email)
	doc, err := a.store.QueryOnce(ctx, storage.CredentialsCollection, storage.EmailField, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}
	if doc == nil {
		return nil, ErrInvalidCredentials
	}
	cred := storage.DecodeCredential(*doc)

	// Compare password hash
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}

	userDoc, err := a.store.Get(ctx, storage.DocPath(storage.UsersCollection, cred.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if userDoc == nil {
		return a.provision(ctx, cred.UserID, email, "")
	}
	user := storage.DecodeUser(*userDoc)
	return &user, nil
}

// provision writes the directory entry created on first sign-in.
func (a *PasswordAuthenticator) provision(ctx context.Context, userID, email, displayName string) (*models.User, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = DefaultDisplayName
	}
	limit := 0.0
	user := &models.User{
		ID:           userID,
		Name:         name,
		AvatarURL:    models.DefaultAvatarURL(userID),
		Email:        email,
		MonthlyLimit: &limit,
	}
	if err := a.store.Set(ctx, storage.DocPath(storage.UsersCollection, userID), storage.UserFields(*user)); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
