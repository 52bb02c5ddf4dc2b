package secret

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/chacha20poly1305"

	"gate-system/internal/status"
)

const parameterKeyPrefix = "param:"

// RedisParameterStore keeps parameters in Redis, sealed with
// XChaCha20-Poly1305. The parameter name is bound as additional data so a
// ciphertext cannot be moved to another name.
type RedisParameterStore struct {
	client redis.Cmdable
	aead   cipher.AEAD
}

// NewRedisParameterStore requires a 32-byte key.
func NewRedisParameterStore(client redis.Cmdable, key []byte) (*RedisParameterStore, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secret: init cipher: %w", err)
	}
	return &RedisParameterStore{client: client, aead: aead}, nil
}

func (r *RedisParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	sealed, err := r.client.Get(ctx, parameterKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", status.ErrParameterNotFound
	}
	if err != nil {
		return "", fmt.Errorf("secret: get %s: %w", name, err)
	}

	nonceSize := r.aead.NonceSize()
	if len(sealed) < nonceSize+r.aead.Overhead() {
		return "", fmt.Errorf("secret: parameter %s is truncated", name)
	}
	plain, err := r.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], []byte(name))
	if err != nil {
		return "", fmt.Errorf("secret: decrypt %s: %w", name, err)
	}
	return string(plain), nil
}

func (r *RedisParameterStore) PutParameter(ctx context.Context, name, value string) error {
	sealed, err := r.seal(name, value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, parameterKeyPrefix+name, sealed, 0).Err(); err != nil {
		return fmt.Errorf("secret: put %s: %w", name, err)
	}
	return nil
}

func (r *RedisParameterStore) DeleteParameter(ctx context.Context, name string) error {
	n, err := r.client.Del(ctx, parameterKeyPrefix+name).Result()
	if err != nil {
		return fmt.Errorf("secret: delete %s: %w", name, err)
	}
	if n == 0 {
		return status.ErrParameterNotFound
	}
	return nil
}

func (r *RedisParameterStore) seal(name, value string) ([]byte, error) {
	nonce := make([]byte, r.aead.NonceSize(), r.aead.NonceSize()+len(value)+r.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secret: nonce: %w", err)
	}
	return r.aead.Seal(nonce, nonce, []byte(value), []byte(name)), nil
}
