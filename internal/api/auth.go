package api

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tdm-server/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultTokenTTL is how long an issued token stays valid.
	DefaultTokenTTL = 7 * 24 * time.Hour

	tokenIssuer = "tdm-server"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,16}$`)

var errInvalidToken = errors.New("invalid token")

// UserStore is the slice of the profile store the auth endpoints use.
type UserStore interface {
	CreateUser(ctx context.Context, username, passHash string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	MatchHistory(ctx context.Context, userID string, limit int) ([]store.MatchSummary, error)
	TopPlayers(ctx context.Context, sortBy string, limit int) ([]store.User, error)
}

// AuthConfig configures token signing and password hashing.
type AuthConfig struct {
	// Secret signs tokens. Empty generates a random per-process secret, so
	// tokens do not survive a restart.
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int

	// LoginLimit throttles /auth/login and /auth/register per IP.
	// Nil uses 1 request per second with a burst of 10.
	LoginLimit *RateLimitConfig
}

// Claims are the JWT claims issued on register and login. The subject is
// the user id.
type Claims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// Auth issues and validates tokens and serves the /auth endpoints.
type Auth struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	cost   int

	loginLimiter *IPRateLimiter
	now          func() time.Time
}

// NewAuth creates the auth service. Call Stop to release the login limiter.
func NewAuth(users UserStore, cfg AuthConfig) (*Auth, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		log.Printf("⚠️ JWT_SECRET not set, tokens will not survive a restart")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	loginCfg := RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             10,
		CleanupInterval:   5 * time.Minute,
	}
	if cfg.LoginLimit != nil {
		loginCfg = *cfg.LoginLimit
	}

	return &Auth{
		users:        users,
		secret:       secret,
		ttl:          cfg.TokenTTL,
		cost:         cfg.BcryptCost,
		loginLimiter: NewIPRateLimiter(loginCfg),
		now:          time.Now,
	}, nil
}

// Stop releases background resources.
func (a *Auth) Stop() {
	a.loginLimiter.Stop()
}

// IssueToken signs a token for a user.
func (a *Auth) IssueToken(userID, username string) (string, error) {
	now := a.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateToken verifies a token and returns its claims.
func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Routes mounts the /auth endpoints.
func (a *Auth) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(a.loginLimiter.Middleware)
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
	})
	r.Get("/profile", a.handleOwnProfile)
	r.Get("/profile/{userId}", a.handleProfile)
	r.Get("/leaderboard", a.handleLeaderboard)
	r.Get("/matches", a.handleMatches)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var req credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		return credentials{}, false
	}
	req.Username = strings.TrimSpace(req.Username)
	return req, req.Username != "" && req.Password != ""
}

func (a *Auth) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		writeError(w, "Username and password are required", http.StatusBadRequest)
		return
	}
	if !usernamePattern.MatchString(req.Username) {
		writeError(w, "Username must be 3-16 characters and contain only letters, numbers, and underscores", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.cost)
	if err != nil {
		// bcrypt rejects passwords longer than 72 bytes
		writeError(w, "Invalid password", http.StatusBadRequest)
		return
	}

	user, err := a.users.CreateUser(r.Context(), req.Username, string(hash))
	if errors.Is(err, store.ErrUsernameTaken) {
		writeError(w, "Username already exists", http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("❌ Register %s: %v", req.Username, err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	a.respondWithToken(w, http.StatusCreated, user)
	log.Printf("👤 User registered: %s (%s)", user.Username, user.ID)
}

func (a *Auth) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		writeError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := a.users.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("❌ Login %s: %v", req.Username, err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(req.Password)) != nil {
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := a.users.TouchLogin(r.Context(), user.ID, a.now()); err != nil {
		log.Printf("⚠️ Touch login %s: %v", user.ID, err)
	}
	a.respondWithToken(w, http.StatusOK, user)
}

func (a *Auth) respondWithToken(w http.ResponseWriter, status int, user store.User) {
	token, err := a.IssueToken(user.ID, user.Username)
	if err != nil {
		log.Printf("❌ Sign token for %s: %v", user.ID, err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, status, tokenResponse{UserID: user.ID, Username: user.Username, Token: token})
}

// bearer returns the claims of the request's Authorization header.
func (a *Auth) bearer(r *http.Request) (*Claims, bool) {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return nil, false
	}
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (a *Auth) handleOwnProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.bearer(r)
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	a.writeProfile(w, r, claims.Subject)
}

func (a *Auth) handleProfile(w http.ResponseWriter, r *http.Request) {
	a.writeProfile(w, r, chi.URLParam(r, "userId"))
}

func (a *Auth) writeProfile(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := a.users.GetUserByID(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("❌ Profile %s: %v", userID, err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, user)
}

func (a *Auth) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	users, err := a.users.TopPlayers(r.Context(), r.URL.Query().Get("sort"), limit)
	if errors.Is(err, store.ErrInvalidSort) {
		writeError(w, "Invalid sort parameter", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("❌ Leaderboard: %v", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, users)
}

func (a *Auth) handleMatches(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.bearer(r)
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := a.users.MatchHistory(r.Context(), claims.Subject, limit)
	if err != nil {
		log.Printf("❌ Match history %s: %v", claims.Subject, err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, history)
}
