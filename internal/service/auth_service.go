package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/session"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/api"
	"github.com/mmynk/splitledger/pkg/api/apiconnect"
)

// AuthService implements the AuthService RPC interface.
// Signing in starts the user's ledger session; logging out ends it.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	sessions      *session.Registry
	store         storage.Store
	logger        *slog.Logger
}

var _ apiconnect.AuthServiceHandler = (*AuthService)(nil)

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, sessions *session.Registry, store storage.Store, logger *slog.Logger) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		sessions:      sessions,
		store:         store,
		logger:        logger,
	}
}

// Register creates a new user account.
func (s *AuthService) Register(ctx context.Context, req *connect.Request[api.RegisterRequest]) (*connect.Response[api.AuthResponse], error) {
	s.logger.Info("Register request", "email", req.Msg.Email)

	if req.Msg.Email == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidEmail)
	}

	user, err := s.authenticator.Register(ctx, req.Msg.Email, req.Msg.DisplayName, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Registration failed", "email", req.Msg.Email, "error", err)
		return nil, toConnectError(req.Spec().Procedure, err)
	}

	resp, err := s.signIn(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User registered successfully", "user_id", user.ID)
	return resp, nil
}

// Login authenticates a user, starts their session and returns a token.
func (s *AuthService) Login(ctx context.Context, req *connect.Request[api.LoginRequest]) (*connect.Response[api.AuthResponse], error) {
	s.logger.Info("Login request", "email", req.Msg.Email)

	if req.Msg.Email == "" || req.Msg.Password == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidCredentials)
	}

	user, err := s.authenticator.Authenticate(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Login failed", "email", req.Msg.Email, "error", err)
		return nil, toConnectError(req.Spec().Procedure, err)
	}

	resp, err := s.signIn(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User logged in successfully", "user_id", user.ID)
	return resp, nil
}

// signIn replaces any previous session of the user and issues a token.
func (s *AuthService) signIn(ctx context.Context, user *models.User) (*connect.Response[api.AuthResponse], error) {
	if _, err := s.sessions.Start(ctx, user.ID); err != nil {
		s.logger.Error("Failed to start session", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	token, err := s.jwtManager.Generate(*user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&api.AuthResponse{
		User:  toAPIUser(*user),
		Token: token,
	}), nil
}

// Logout ends the caller's session and revokes the token it presented.
func (s *AuthService) Logout(ctx context.Context, req *connect.Request[api.LogoutRequest]) (*connect.Response[api.LogoutResponse], error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}

	s.sessions.End(userID)
	s.jwtManager.Revoke(middleware.GetClaims(ctx))

	s.logger.Info("User logged out", "user_id", userID)
	return connect.NewResponse(&api.LogoutResponse{}), nil
}

// GetCurrentUser returns the authenticated user's directory entry.
func (s *AuthService) GetCurrentUser(ctx context.Context, req *connect.Request[api.GetCurrentUserRequest]) (*connect.Response[api.GetCurrentUserResponse], error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}

	doc, err := s.store.Get(ctx, storage.DocPath(storage.UsersCollection, userID))
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	if doc == nil {
		return nil, connect.NewError(connect.CodeNotFound, storage.ErrNotFound)
	}

	return connect.NewResponse(&api.GetCurrentUserResponse{
		User: toAPIUser(storage.DecodeUser(*doc)),
	}), nil
}
