package config

import "time"

type Config struct {
	Server    ServerConfig
	Knowledge KnowledgeConfig
	Matcher   MatcherConfig
	Session   SessionConfig
	CORS      CORSConfig
	Storage   StorageConfig
	Bots      MultiBot
}

type ServerConfig struct {
	Host      string
	Port      int
	APIPrefix string
	Version   string
}

// KnowledgeConfig describes where the corpus lives. Source is either a
// filesystem path or an s3://bucket/object URL served through Storage.
type KnowledgeConfig struct {
	Source string
	Watch  bool
}

type MatcherConfig struct {
	DefaultLanguage    string
	SupportedLanguages []string
	Threshold          float64
	ReplyPolicy        string
	ReplySeed          int64
}

type SessionConfig struct {
	Store         string
	RedisURL      string
	TTL           time.Duration
	MaxSessions   int
	SweepSchedule string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type BotInstance struct {
	Enabled bool
	Token   string
}

type MultiBot struct {
	Telegram BotInstance
	Discord  BotInstance
}
