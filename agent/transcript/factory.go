package transcript

import (
	"fmt"

	"gorm.io/gorm"
)

// Config selects and configures the transcript backend.
type Config struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// ConversationID keys the transcript inside shared backends (redis, sql)
	ConversationID string `json:"conversation_id" yaml:"conversation_id"`

	// Path is the JSON Lines file (only used when Type is "file")
	Path string `json:"path" yaml:"path"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// DefaultConfig returns the default store configuration
func DefaultConfig() Config {
	return Config{
		Type:           StoreTypeMemory,
		ConversationID: DefaultConversationID,
		Path:           "./data/transcript.jsonl",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "procurement:",
		},
	}
}

// Open creates a Store based on the configuration. db is required for the sql backend only.
func Open(cfg Config, db *gorm.DB) (Store, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(cfg.Path)
	case StoreTypeRedis:
		return NewRedisStore(cfg.Redis, cfg.ConversationID)
	case StoreTypeSQL:
		if db == nil {
			return nil, fmt.Errorf("sql transcript store requires a database connection")
		}
		return NewSQLStore(db, cfg.ConversationID), nil
	default:
		return nil, fmt.Errorf("unsupported transcript store type: %s", cfg.Type)
	}
}
