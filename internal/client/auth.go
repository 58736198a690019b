package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Credentials сохраненная сессия администратора
type Credentials struct {
	Token string `json:"admin_token,omitempty"`
	User  string `json:"admin_user,omitempty"`
}

// TokenStore хранилище сессии
type TokenStore interface {
	Load() (Credentials, error)
	Save(Credentials) error
	Clear() error
}

// MemoryStore хранит сессию в памяти процесса
type MemoryStore struct {
	mu    sync.Mutex
	creds Credentials
}

func (s *MemoryStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, nil
}

func (s *MemoryStore) Save(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
	return nil
}

func (s *MemoryStore) Clear() error {
	return s.Save(Credentials{})
}

// FileStore хранит сессию в JSON файле с правами 0600
type FileStore struct {
	Path string
}

// DefaultCredentialsPath ~/.vanctl/credentials.json
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".vanctl", "credentials.json"), nil
}

func (s FileStore) Load() (Credentials, error) {
	var c Credentials
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse credentials %s: %w", s.Path, err)
	}
	return c, nil
}

func (s FileStore) Save(c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

func (s FileStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

// AuthState держит токен и пользователя текущей сессии.
// Создается один раз и передается всем, кто вызывает API.
type AuthState struct {
	mu    sync.RWMutex
	store TokenStore
	creds Credentials
}

// NewAuthState загружает сессию из store
func NewAuthState(store TokenStore) (*AuthState, error) {
	creds, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &AuthState{store: store, creds: creds}, nil
}

// Token возвращает admin_token или пустую строку
func (a *AuthState) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.creds.Token
}

// User возвращает admin_user
func (a *AuthState) User() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.creds.User
}

// Save запоминает новую сессию
func (a *AuthState) Save(token, user string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := Credentials{Token: token, User: user}
	if err := a.store.Save(c); err != nil {
		return err
	}
	a.creds = c
	return nil
}

// Clear удаляет admin_token и admin_user
func (a *AuthState) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creds = Credentials{}
	return a.store.Clear()
}
