package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-agent/internal/auth"
	"otp-agent/internal/client"
	"otp-agent/internal/encryption"
	"otp-agent/internal/model"
)

const tokenPrefix = "agent_token:"

// TokenStore keeps the access token in redis so several agents on one
// machine share a login. The value is sealed when a sealer is given.
type TokenStore struct {
	client  *client.RedisClient
	profile string
	ttl     time.Duration
	sealer  *encryption.Sealer
	logger  *zap.Logger
}

func NewTokenStore(c *client.RedisClient, profile string, ttl time.Duration, sealer *encryption.Sealer, logger *zap.Logger) *TokenStore {
	return &TokenStore{client: c, profile: profile, ttl: ttl, sealer: sealer, logger: logger}
}

func (s *TokenStore) key() string {
	return tokenPrefix + s.profile
}

func (s *TokenStore) Load(ctx context.Context) (model.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key())
	if errors.Is(err, client.ErrKeyNotFound) {
		return model.Token{}, auth.ErrNoToken
	}
	if err != nil {
		s.logger.Error("Failed to load token", zap.String("profile", s.profile), zap.Error(err))
		return model.Token{}, fmt.Errorf("failed to load token: %w", err)
	}

	plain := []byte(raw)
	if s.sealer != nil {
		var sealed encryption.EncryptedData
		if err := json.Unmarshal(plain, &sealed); err != nil {
			return model.Token{}, fmt.Errorf("%w: %v", auth.ErrCorruptToken, err)
		}
		if plain, err = s.sealer.Open(&sealed); err != nil {
			return model.Token{}, fmt.Errorf("%w: %v", auth.ErrCorruptToken, err)
		}
	}

	var token model.Token
	if err := json.Unmarshal(plain, &token); err != nil {
		return model.Token{}, fmt.Errorf("%w: %v", auth.ErrCorruptToken, err)
	}
	return token, nil
}

func (s *TokenStore) Save(ctx context.Context, token model.Token) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(payload)
		if err != nil {
			return err
		}
		if payload, err = json.Marshal(sealed); err != nil {
			return fmt.Errorf("failed to encode sealed token: %w", err)
		}
	}

	if err := s.client.Set(ctx, s.key(), payload, s.ttl); err != nil {
		s.logger.Error("Failed to save token", zap.String("profile", s.profile), zap.Error(err))
		return fmt.Errorf("failed to save token: %w", err)
	}
	s.logger.Debug("Token saved", zap.String("profile", s.profile), zap.Duration("ttl", s.ttl))
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Del(ctx, s.key()); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
