package encryption

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

const (
	sealVersion = "v1"
	saltLength  = 16
	keyLength   = chacha20poly1305.KeySize
)

// Argon2Params tune the passphrase key derivation.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

var DefaultParams = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
}

// EncryptedData is the at-rest form of a sealed value.
type EncryptedData struct {
	Version        string       `json:"version"`
	Salt           string       `json:"salt"`
	Nonce          string       `json:"nonce"`
	EncryptedValue string       `json:"encrypted_value"`
	Params         Argon2Params `json:"params"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Sealer encrypts small secrets under a key derived from a passphrase.
type Sealer struct {
	passphrase []byte
	params     Argon2Params

	// salt and params -> derived key
	keyCache sync.Map
}

func NewSealer(passphrase string, params Argon2Params) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		params = DefaultParams
	}
	return &Sealer{passphrase: []byte(passphrase), params: params}, nil
}

func (s *Sealer) deriveKey(salt []byte, params Argon2Params) []byte {
	cacheKey := string(salt) + fmt.Sprintf("/%d/%d/%d", params.Memory, params.Iterations, params.Parallelism)
	if key, ok := s.keyCache.Load(cacheKey); ok {
		return key.([]byte)
	}
	key := argon2.IDKey(s.passphrase, salt, params.Iterations, params.Memory, params.Parallelism, keyLength)
	s.keyCache.Store(cacheKey, key)
	return key
}

func (s *Sealer) Seal(plaintext []byte) (*EncryptedData, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt, s.params))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, []byte(sealVersion))

	return &EncryptedData{
		Version:        sealVersion,
		Salt:           base64.StdEncoding.EncodeToString(salt),
		Nonce:          base64.StdEncoding.EncodeToString(nonce),
		EncryptedValue: base64.StdEncoding.EncodeToString(ciphertext),
		Params:         s.params,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Open returns ErrDecryptionFailed for a wrong passphrase or tampered data.
func (s *Sealer) Open(data *EncryptedData) ([]byte, error) {
	if data == nil || data.Version != sealVersion {
		return nil, fmt.Errorf("%w: unsupported version", ErrDecryptionFailed)
	}

	salt, err := base64.StdEncoding.DecodeString(data.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrDecryptionFailed, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(data.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrDecryptionFailed, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(data.EncryptedValue)
	if err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrDecryptionFailed, err)
	}

	params := data.Params
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		params = DefaultParams
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt, params))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce size", ErrDecryptionFailed)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(data.Version))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// ClearCache drops derived keys.
func (s *Sealer) ClearCache() {
	s.keyCache.Range(func(key, _ interface{}) bool {
		s.keyCache.Delete(key)
		return true
	})
}
