// =============================================================================
// 📦 采购群聊默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultTask 是驱动循环首次运行的采购请求
const DefaultTask = "We need to procure 50 MacBooks for Engineering, budget around 75L INR, " +
	"next quarter, prefer Apple Authorized Vendor. Process this request."

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Conversation: DefaultConversationConfig(),
		Selector:     DefaultSelectorConfig(),
		LLM:          DefaultLLMConfig(),
		Human:        DefaultHumanConfig(),
		Transcript:   DefaultTranscriptConfig(),
		Server:       DefaultServerConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultConversationConfig 返回默认终止条件
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		Keywords:    []string{"TERMINATE", "FINAL_DECISION", "APPROVED", "REJECTED"},
		MaxMessages: 30,
		DefaultTask: DefaultTask,
	}
}

// DefaultSelectorConfig 返回默认选择器配置
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		HistoryWindow:        20,
		AllowRepeatedSpeaker: true,
		Timeout:              30 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置，未配置 API Key 时使用离线生成器
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:       "offline",
		BaseURL:        "https://api.openai.com",
		Model:          "gpt-4o",
		Temperature:    0.2,
		Timeout:        2 * time.Minute,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Burst:          1,
		MaxToolRounds:  4,
	}
}

// DefaultHumanConfig 返回默认人工介入配置
func DefaultHumanConfig() HumanConfig {
	return HumanConfig{
		Timeout: 0,
	}
}

// DefaultTranscriptConfig 返回默认会话记录配置
func DefaultTranscriptConfig() TranscriptConfig {
	return TranscriptConfig{
		Type:           "memory",
		ConversationID: "default",
		Path:           "./data/transcript.jsonl",
		Redis:          DefaultRedisConfig(),
		Database:       DefaultDatabaseConfig(),
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "procurement:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "procurement",
		Password:        "",
		Name:            "./data/procurement.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultServerConfig 返回默认监控服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:          false,
		Addr:             "127.0.0.1:9091",
		MetricsNamespace: "procurement",
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		ShutdownTimeout:  15 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "procurement-groupchat",
		SampleRate:   0.1,
	}
}
