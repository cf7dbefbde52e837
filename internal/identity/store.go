package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	usersFileName = "users.json"
	filePerms     = 0600 // Owner read/write only
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// User is a registered identity with its embedded wallet.
type User struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Wallet    common.Address `json:"wallet"`
	CreatedAt time.Time      `json:"created_at"`
}

// UserData is the structure of users.json
type UserData struct {
	Version int             `json:"version"`
	AppID   string          `json:"app_id"`
	Users   map[string]User `json:"users"` // keyed by normalized email
}

// Store persists the users of one app.
type Store struct {
	mu       sync.RWMutex
	filePath string
	data     *UserData
}

// NewStore opens the user registry in dir, creating it if needed.
func NewStore(dir, appID string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create app directory: %w", err)
	}

	store := &Store{
		filePath: filepath.Join(dir, usersFileName),
		data: &UserData{
			Version: 1,
			AppID:   appID,
			Users:   make(map[string]User),
		},
	}

	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	if store.data.AppID != appID {
		return nil, fmt.Errorf("user registry belongs to app %q, not %q", store.data.AppID, appID)
	}

	return store, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var userData UserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to parse users file: %w", err)
	}
	if userData.Users == nil {
		userData.Users = make(map[string]User)
	}

	s.data = &userData
	return nil
}

// save writes users.json atomically with owner-only permissions
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, filePerms); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save users file: %w", err)
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetUser looks a user up by email.
func (s *Store) GetUser(email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.data.Users[normalizeEmail(email)]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return user, nil
}

// CreateUser registers email with its embedded wallet address.
func (s *Store) CreateUser(email string, wallet common.Address) (User, error) {
	key := normalizeEmail(email)
	if key == "" {
		return User{}, errors.New("email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[key]; ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserExists, email)
	}

	user := User{
		ID:        uuid.NewString(),
		Email:     key,
		Wallet:    wallet,
		CreatedAt: time.Now().UTC(),
	}
	s.data.Users[key] = user
	if err := s.save(); err != nil {
		delete(s.data.Users, key)
		return User{}, err
	}
	return user, nil
}

// ListUsers returns all users, oldest first.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]User, 0, len(s.data.Users))
	for _, u := range s.data.Users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Email < users[j].Email
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}
