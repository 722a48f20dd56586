// Package auth provides accounts for the leads API: signup and login with
// bcrypt-hashed passwords, HS256 session tokens, and per-user saved leads.
// Users live in their own badgerhold store next to the tracking data,
// keyed by normalised email.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidCreds = errors.New("invalid credentials")

	jwtSecretOnce    sync.Once
	jwtSecretRuntime []byte
	jwtSecretErr     error
)

// tokenTTL bounds how long an issued session token stays valid.
const tokenTTL = 24 * time.Hour

func jwtSecretFromEnv() ([]byte, error) {
	jwtSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if secret != "" {
			jwtSecretRuntime = []byte(secret)
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			jwtSecretErr = fmt.Errorf("failed to generate JWT fallback secret: %w", err)
			return
		}

		jwtSecretRuntime = []byte(base64.RawURLEncoding.EncodeToString(buf))
		log.Print("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if jwtSecretErr != nil {
		return nil, jwtSecretErr
	}
	if len(jwtSecretRuntime) == 0 {
		return nil, errors.New("JWT secret unavailable")
	}

	return jwtSecretRuntime, nil
}

// User is one API account. The password hash never appears in responses.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// SavedLead is one bookmark, stored under "userID|entityKey" so a lead can
// be saved at most once per user.
type SavedLead struct {
	UserID    string    `json:"user_id"`
	EntityKey string    `json:"entity_key"`
	SavedAt   time.Time `json:"saved_at"`
}

// Service stores users and their saved leads.
type Service struct {
	db *badgerhold.Store
}

// Open opens (or creates) the user store at dir, conventionally
// tracking/users.db.
func Open(dir string) (*Service, error) {
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open user store at %s: %w", dir, err)
	}
	return &Service{db: db}, nil
}

func (s *Service) Close() error {
	return s.db.Close()
}

// NormalizeEmail lowercases and trims an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Signup(req SignupRequest) (*AuthResponse, error) {
	email := NormalizeEmail(req.Email)

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	user := User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.Insert(email, &user); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert failed: %w", err)
	}

	token, err := generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return &AuthResponse{Token: token, User: user}, nil
}

func (s *Service) Login(req LoginRequest) (*AuthResponse, error) {
	var user User
	err := s.db.Get(NormalizeEmail(req.Email), &user)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCreds
	}

	token, err := generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return &AuthResponse{Token: token, User: user}, nil
}

func generateToken(userID uuid.UUID) (string, error) {
	secretKey, err := jwtSecretFromEnv()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// Saved leads

func savedKey(userID uuid.UUID, entityKey string) string {
	return userID.String() + "|" + entityKey
}

// SaveLead bookmarks a lead for the user. Saving twice is a no-op.
func (s *Service) SaveLead(userID uuid.UUID, entityKey string) error {
	rec := SavedLead{
		UserID:    userID.String(),
		EntityKey: entityKey,
		SavedAt:   time.Now().UTC(),
	}
	err := s.db.Insert(savedKey(userID, entityKey), &rec)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return nil
	}
	return err
}

// UnsaveLead removes a bookmark. Removing a missing one is a no-op.
func (s *Service) UnsaveLead(userID uuid.UUID, entityKey string) error {
	err := s.db.Delete(savedKey(userID, entityKey), &SavedLead{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}

// SavedKeys returns the user's bookmarked entity keys, most recent first.
func (s *Service) SavedKeys(userID uuid.UUID) ([]string, error) {
	var recs []SavedLead
	if err := s.db.Find(&recs, badgerhold.Where("UserID").Eq(userID.String())); err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].SavedAt.After(recs[j].SavedAt) })

	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.EntityKey
	}
	return keys, nil
}
