package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/repositories"
)

var (
	errUserRepositoryRequired = errors.New("user service: user repository is required")
	errUserSessionsRequired   = errors.New("user service: session issuer is required")
	errUserClockRequired      = errors.New("user service: clock is required")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

const minPasswordLength = 8

var (
	// ErrUserInvalidInput indicates the caller supplied invalid input.
	ErrUserInvalidInput = errors.New("user service: invalid input")
	// ErrUserEmailTaken indicates an account with the email already exists.
	ErrUserEmailTaken = errors.New("user service: email already registered")
	// ErrUserInvalidCredentials indicates the email/password pair did not match.
	ErrUserInvalidCredentials = errors.New("user service: invalid credentials")
	// ErrUserNotFound indicates the account does not exist.
	ErrUserNotFound = errors.New("user service: not found")
	// ErrUserUnavailable indicates the backend could not fulfil the request.
	ErrUserUnavailable = errors.New("user service: unavailable")
)

// sessionIssuer abstracts the token signer so tests can stub it.
type sessionIssuer interface {
	Issue(uid, email, role string) (string, error)
}

// UserServiceDeps wires the repository and session dependencies.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Sessions    sessionIssuer
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type userService struct {
	users    repositories.UserRepository
	sessions sessionIssuer
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewUserService constructs a UserService enforcing dependency validation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errUserRepositoryRequired
	}
	if deps.Sessions == nil {
		return nil, errUserSessionsRequired
	}
	if deps.Clock == nil {
		return nil, errUserClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "usr_" + ulid.Make().String() }
	}

	return &userService{
		users:    deps.Users,
		sessions: deps.Sessions,
		now:      func() time.Time { return deps.Clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// Register creates a customer account and issues a session token.
func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (AuthResult, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return AuthResult{}, fmt.Errorf("%w: name is required", ErrUserInvalidInput)
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if !emailPattern.MatchString(email) {
		return AuthResult{}, fmt.Errorf("%w: invalid email address", ErrUserInvalidInput)
	}
	if len(cmd.Password) < minPasswordLength {
		return AuthResult{}, fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrUserEmailTaken
	} else if !isRepoNotFound(err) {
		return AuthResult{}, ErrUserUnavailable
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, ErrUserUnavailable
	}

	now := s.now()
	user := domain.UserAccount{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		CartData:     map[string]int{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return AuthResult{}, s.translateRepoError(err)
	}

	token, err := s.sessions.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return AuthResult{}, ErrUserUnavailable
	}

	s.logger(ctx, "users.registered", map[string]any{"userID": user.ID})

	user.PasswordHash = ""
	return AuthResult{Token: token, User: user}, nil
}

// Login authenticates the email/password pair and issues a session token.
// A missing account and a wrong password are indistinguishable to the caller.
func (s *userService) Login(ctx context.Context, cmd LoginCommand) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || cmd.Password == "" {
		return AuthResult{}, fmt.Errorf("%w: email and password are required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return AuthResult{}, ErrUserInvalidCredentials
		}
		return AuthResult{}, ErrUserUnavailable
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.Password)); err != nil {
		return AuthResult{}, ErrUserInvalidCredentials
	}

	token, err := s.sessions.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return AuthResult{}, ErrUserUnavailable
	}

	s.logger(ctx, "users.logged_in", map[string]any{"userID": user.ID})

	user.PasswordHash = ""
	return AuthResult{Token: token, User: user}, nil
}

// GetProfile loads the account without its password hash.
func (s *userService) GetProfile(ctx context.Context, userID string) (UserAccount, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return UserAccount{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return UserAccount{}, s.translateRepoError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrUserNotFound
		case repoErr.IsConflict():
			return ErrUserEmailTaken
		}
	}
	return ErrUserUnavailable
}
