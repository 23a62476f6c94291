package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"otp-agent/internal/encryption"
	"otp-agent/internal/model"
)

// FileStore keeps the token in a file sealed with a passphrase.
type FileStore struct {
	path   string
	sealer *encryption.Sealer
	mu     sync.Mutex
}

func NewFileStore(path string, sealer *encryption.Sealer) *FileStore {
	return &FileStore{path: path, sealer: sealer}
}

func (s *FileStore) Load(_ context.Context) (model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Token{}, ErrNoToken
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("read token file: %w", err)
	}

	var sealed encryption.EncryptedData
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return model.Token{}, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}
	plain, err := s.sealer.Open(&sealed)
	if err != nil {
		return model.Token{}, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}

	var token model.Token
	if err := json.Unmarshal(plain, &token); err != nil {
		return model.Token{}, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}
	return token, nil
}

func (s *FileStore) Save(_ context.Context, token model.Token) error {
	plain, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("encode sealed token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
