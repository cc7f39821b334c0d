package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenManager issues and resolves bearer tokens backed by Redis.
type TokenManager struct {
	client *redis.Client
	ttl    time.Duration
	secret []byte
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(client *redis.Client, secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{client: client, ttl: ttl, secret: []byte(secret)}
}

// Issue creates a token for the identity and stores it with the configured TTL.
func (tm *TokenManager) Issue(ctx context.Context, id Identity) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	payload, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	if err := tm.client.Set(ctx, tm.redisKey(token), payload, tm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the identity for a token, refreshing its TTL.
// Unknown or expired tokens yield ErrSessionExpired.
func (tm *TokenManager) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrSessionExpired
	}
	key := tm.redisKey(token)
	payload, err := tm.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	var id Identity
	if err := json.Unmarshal(payload, &id); err != nil {
		return nil, err
	}
	_ = tm.client.Expire(ctx, key, tm.ttl).Err()
	return &id, nil
}

// Revoke removes a token.
func (tm *TokenManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := tm.client.Del(ctx, tm.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// redisKey derives the storage key from the token. Keys are HMACs so a
// Redis dump does not contain usable bearer tokens.
func (tm *TokenManager) redisKey(token string) string {
	mac := hmac.New(sha256.New, tm.secret)
	mac.Write([]byte(token))
	return "almacen_token:" + hex.EncodeToString(mac.Sum(nil))
}
