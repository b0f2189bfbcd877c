package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ledmkt-backend/internal/config"
	"ledmkt-backend/pkg/logger"
)

// Logical keys, named after the browser storage keys of the web client.
const (
	KeyConversations  = "ledchat_conversations"
	KeyUser           = "ledchat_user"
	KeyUsers          = "ledchat_users"
	KeyLoginTimestamp = "ledchat_login_timestamp"
)

// New builds the backend named by cfg.Type and initializes it. A backend
// that fails to initialize is replaced by memory storage.
func New(cfg config.StorageConfig) Storage {
	var store Storage

	switch cfg.Type {
	case "disk":
		store = NewDiskStorage(cfg.DataDir, cfg.CacheSize)
	case "sqlite":
		store = NewSQLiteStorage(cfg.SQLitePath)
	case "redis":
		store = NewRedisStorage(cfg.RedisURL, cfg.RedisPrefix)
	default:
		store = NewMemoryStorage()
	}

	if err := store.Init(); err != nil {
		logger.Errorf("Failed to initialize %s storage: %v", cfg.Type, err)
		store = NewMemoryStorage()
		if err := store.Init(); err != nil {
			logger.Errorf("Failed to initialize memory storage: %v", err)
		}
	}

	return store
}

// LoadJSON decodes the record stored under key into out. found is false
// when the key is absent.
func LoadJSON(ctx context.Context, s Storage, key string, out interface{}) (found bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrInvalidData, key, err)
	}
	return true, nil
}

func SaveJSON(ctx context.Context, s Storage, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidData, key, err)
	}
	return s.Set(ctx, key, string(data))
}
