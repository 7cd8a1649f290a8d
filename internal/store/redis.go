package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/redis.v5"

	"github.com/drallgood/book-manager/internal/book"
	"github.com/drallgood/book-manager/internal/config"
	"github.com/drallgood/book-manager/internal/library"
	"github.com/drallgood/book-manager/internal/logger"
)

// errKeyNotFound is returned by a kv when the key does not exist
var errKeyNotFound = errors.New("key not found")

// kv is the subset of a Redis client the store needs
type kv interface {
	get(key string) ([]byte, error)
	set(key string, value []byte) error
	close() error
}

type redisKV struct {
	client *redis.Client
}

func (r redisKV) get(key string) ([]byte, error) {
	data, err := r.client.Get(key).Bytes()
	if err == redis.Nil {
		return nil, errKeyNotFound
	}
	return data, err
}

func (r redisKV) set(key string, value []byte) error {
	return r.client.Set(key, value, 0).Err()
}

func (r redisKV) close() error {
	return r.client.Close()
}

// RedisStore keeps the library as one JSON document under a Redis key
type RedisStore struct {
	kv     kv
	key    string
	logger *logger.Logger
}

// NewRedisStore creates a store backed by the configured Redis server. The
// connection is established lazily on first use.
func NewRedisStore(cfg config.RedisConfig, log *logger.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisStore(redisKV{client: client}, cfg.Key, log)
}

func newRedisStore(kv kv, key string, log *logger.Logger) *RedisStore {
	if key == "" {
		key = config.DefaultRedisKey
	}
	return &RedisStore{
		kv:  kv,
		key: key,
		logger: log.With(map[string]interface{}{
			"component": "redis_store",
			"key":       key,
		}),
	}
}

// Load reads the library document. A missing key yields an empty snapshot.
func (s *RedisStore) Load(ctx context.Context) (library.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return library.Snapshot{}, err
	}

	data, err := s.kv.get(s.key)
	if errors.Is(err, errKeyNotFound) {
		s.logger.Debug("Library key not found, starting empty")
		return library.Snapshot{NextID: 1}, nil
	}
	if err != nil {
		return library.Snapshot{}, fmt.Errorf("failed to read library from redis: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return library.Snapshot{}, fmt.Errorf("failed to parse library from redis: %w", err)
	}
	if doc.Version != "" && doc.Version != CurrentVersion {
		return library.Snapshot{}, fmt.Errorf("unsupported library version: %s", doc.Version)
	}

	return library.Snapshot{NextID: doc.NextID, Books: doc.Books}, nil
}

// Save overwrites the library document
func (s *RedisStore) Save(ctx context.Context, snap library.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := fileDocument{Version: CurrentVersion, NextID: snap.NextID, Books: snap.Books}
	if doc.Books == nil {
		doc.Books = []book.Book{}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode library: %w", err)
	}
	if err := s.kv.set(s.key, data); err != nil {
		return fmt.Errorf("failed to write library to redis: %w", err)
	}

	s.logger.Debug("Library saved to redis", map[string]interface{}{
		"books": len(doc.Books),
	})
	return nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.kv.close()
}
