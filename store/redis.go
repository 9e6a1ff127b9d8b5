package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danthegoodman1/Provisio/ezca"
	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

const redisKeyPrefix = "cert:"

type (
	// RedisStore keeps certificates under cert:<name> until they expire.
	RedisStore struct {
		client *redis.Client
	}

	storedCert struct {
		CertPEM string
		KeyPEM  string
	}
)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error in redis.ParseURL: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opt)}, nil
}

func (r *RedisStore) Save(ctx context.Context, name string, cert *ezca.IssuedCertificate) error {
	if err := validName(name); err != nil {
		return err
	}
	ttl := time.Until(cert.NotAfter())
	if ttl <= 0 {
		return fmt.Errorf("%s expired at %s: %w", name, cert.NotAfter(), ErrExpired)
	}
	keyPEM, err := cert.KeyPEM()
	if err != nil {
		return fmt.Errorf("error in KeyPEM: %w", err)
	}

	// serialize as JSON
	jsonBytes, err := json.Marshal(storedCert{CertPEM: cert.FullChainPEM(), KeyPEM: string(keyPEM)})
	if err != nil {
		return fmt.Errorf("error in json.Marshal for cert: %w", err)
	}
	err = r.client.Set(ctx, redisKeyPrefix+name, jsonBytes, ttl).Err()
	if err != nil {
		return fmt.Errorf("error in redis Set: %w", err)
	}
	logger.Debug().Str("name", name).Dur("ttl", ttl).Msg("stored certificate in redis")
	return nil
}

func (r *RedisStore) Load(ctx context.Context, name string) (*ezca.IssuedCertificate, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	b, err := r.client.Get(ctx, redisKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error in redis Get: %w", err)
	}
	var stored storedCert
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal for cert: %w", err)
	}
	return ezca.ParseIssuedCertificate([]byte(stored.CertPEM), []byte(stored.KeyPEM))
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
