package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/store"
)

const tokenIssuer = "magia-interna"

var (
	ErrMissingSecret      = errors.New("auth secret is required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	logger    *zap.Logger
	users     map[string]credential
	loaded    bool
	revoked   map[string]time.Time
	now       func() time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password string
	role     string
	active   bool
	created  time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// NewAuthManager refuses to build without a signing secret.
func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore, logger *zap.Logger) (*AuthManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		logger:    logger,
		users:     make(map[string]credential),
		revoked:   make(map[string]time.Time),
		now:       time.Now,
	}, nil
}

// EnsureAdmin makes sure the configured administrator exists and that its
// stored hash matches password. Run once at startup.
func (a *AuthManager) EnsureAdmin(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return fmt.Errorf("admin credentials: %w", ErrMissingSecret)
	}
	if err := a.loadUsers(ctx); err != nil {
		return fmt.Errorf("load user accounts: %w", err)
	}

	existing, ok := a.lookup(username)
	if ok && verifyPassword(existing.password, password) {
		return nil
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	now := a.now().UTC()
	if ok {
		if a.userStore != nil {
			if err := a.userStore.UpdateUserPassword(ctx, username, hashed); err != nil {
				return fmt.Errorf("update admin password: %w", err)
			}
		}
		existing.password = hashed
		a.mu.Lock()
		a.users[username] = existing
		a.mu.Unlock()
		return nil
	}

	if a.userStore != nil {
		if err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  hashed,
			Role:      domain.RoleAdmin,
			Active:    true,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
	}
	a.mu.Lock()
	a.users[username] = credential{password: hashed, role: domain.RoleAdmin, active: true, created: now}
	a.mu.Unlock()
	return nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, domain.Session, error) {
	a.ensureLoaded(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	cred, ok := a.lookup(username)
	if !ok {
		// The account may have been created by another instance.
		a.refreshUsers(ctx)
		cred, ok = a.lookup(username)
	}
	if !ok || !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, domain.Session{}, ErrInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, domain.Session{}, ErrInactiveAccount
	}

	issuedAt := a.now().UTC().Truncate(time.Second)
	session := domain.Session{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      cred.role,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(a.tokenTTL),
	}
	token, err := a.sign(session)
	if err != nil {
		return domain.LoginResponse{}, domain.Session{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        session.Role,
		ExpiresAt:   session.ExpiresAt.Format(time.RFC3339),
	}, session, nil
}

// ParseToken validates the signature, expiry and revocation state of a token.
func (a *AuthManager) ParseToken(tokenStr string) (domain.Session, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Session{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.ID == "" {
		return domain.Session{}, ErrInvalidToken
	}

	a.mu.RLock()
	_, revoked := a.revoked[claims.ID]
	a.mu.RUnlock()
	if revoked {
		return domain.Session{}, ErrInvalidToken
	}

	session := domain.Session{ID: claims.ID, Username: sub, Role: claims.Role}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return session, nil
}

// Logout revokes the session until its token would have expired anyway.
func (a *AuthManager) Logout(session domain.Session) {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, expiresAt := range a.revoked {
		if !expiresAt.After(now) {
			delete(a.revoked, id)
		}
	}
	if session.ID != "" {
		a.revoked[session.ID] = session.ExpiresAt
	}
}

func (a *AuthManager) sign(session domain.Session) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        session.ID,
			Subject:   session.Username,
			IssuedAt:  jwtlib.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwtlib.NewNumericDate(session.ExpiresAt),
			Issuer:    tokenIssuer,
		},
		Role: session.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.StaffUser, error) {
	a.ensureLoaded(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.StaffUser{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrInvalid)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.StaffUser{}, fmt.Errorf("%w: username must not contain spaces", store.ErrInvalid)
	}
	if len(req.Password) < 8 {
		return domain.StaffUser{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalid)
	}

	if _, exists := a.lookup(username); exists {
		return domain.StaffUser{}, fmt.Errorf("%w: username already exists", store.ErrConflict)
	}

	now := a.now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.StaffUser{}, fmt.Errorf("hash password: %w", err)
	}

	if a.userStore != nil {
		if err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  passwordHash,
			Role:      domain.RoleStaff,
			Active:    true,
			CreatedAt: now,
		}); err != nil {
			return domain.StaffUser{}, err
		}
	}

	a.mu.Lock()
	a.users[username] = credential{
		password: passwordHash,
		role:     domain.RoleStaff,
		active:   true,
		created:  now,
	}
	a.mu.Unlock()

	return domain.StaffUser{
		Username:  username,
		Role:      domain.RoleStaff,
		Active:    true,
		CreatedAt: now,
	}, nil
}

func (a *AuthManager) ListStaff(ctx context.Context) []domain.StaffUser {
	a.refreshUsers(ctx)
	a.mu.RLock()
	result := make([]domain.StaffUser, 0, len(a.users))
	for username, user := range a.users {
		if user.role != domain.RoleStaff {
			continue
		}
		result = append(result, domain.StaffUser{
			Username:  username,
			Role:      user.role,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// loadUsers replaces the credential cache with the accounts in the user
// store. Accounts whose password is not a bcrypt hash can never log in and
// are skipped.
func (a *AuthManager) loadUsers(ctx context.Context) error {
	if a.userStore == nil {
		return nil
	}
	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return err
	}

	loaded := make(map[string]credential, len(users))
	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		if !isPasswordHash(user.Password) {
			a.logger.Warn("skipping account without a bcrypt password hash", zap.String("username", username))
			continue
		}
		loaded[username] = credential{
			password: user.Password,
			role:     user.Role,
			active:   user.Active,
			created:  user.CreatedAt,
		}
	}

	a.mu.Lock()
	a.users = loaded
	a.loaded = true
	a.mu.Unlock()
	return nil
}

func (a *AuthManager) refreshUsers(ctx context.Context) {
	if err := a.loadUsers(ctx); err != nil {
		a.logger.Error("reload user accounts", zap.Error(err))
	}
}

func (a *AuthManager) ensureLoaded(ctx context.Context) {
	a.mu.RLock()
	loaded := a.loaded
	a.mu.RUnlock()
	if !loaded {
		a.refreshUsers(ctx)
	}
}

func (a *AuthManager) lookup(username string) (credential, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cred, ok := a.users[username]
	return cred, ok
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
