package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bowerhall/kindly/internal/knowledge"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

const version = "1.1.0"

func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	matcher, err := loadMatcherConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Knowledge: loadKnowledgeConfig(),
		Matcher:   matcher,
		Session:   session,
		CORS:      loadCORSConfig(),
		Storage:   loadStorageConfig(),
		Bots:      loadMultiBotConfig(),
	}, nil
}

func loadServerConfig() (ServerConfig, error) {
	host := os.Getenv("HOST")
	if host == "" {
		host = "0.0.0.0"
	}

	port := 8080
	if raw := os.Getenv("PORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return ServerConfig{}, fmt.Errorf("invalid PORT: %q", raw)
		}
		port = p
	}

	prefix := os.Getenv("API_PREFIX")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return ServerConfig{
		Host:      host,
		Port:      port,
		APIPrefix: "/" + strings.Trim(prefix, "/"),
		Version:   version,
	}, nil
}

func loadKnowledgeConfig() KnowledgeConfig {
	source := os.Getenv("KB_SOURCE")
	if source == "" {
		source = "data/kindly-bot.yaml"
	}

	// object-store sources have nothing to watch
	watch := !strings.HasPrefix(source, "s3://") && os.Getenv("KB_WATCH") != "false"

	return KnowledgeConfig{
		Source: source,
		Watch:  watch,
	}
}

func loadMatcherConfig() (MatcherConfig, error) {
	languages := splitList(strings.ToLower(os.Getenv("SUPPORTED_LANGUAGES")))
	if len(languages) == 0 {
		languages = []string{"en", "nb"}
	}

	defaultLanguage := strings.ToLower(strings.TrimSpace(os.Getenv("DEFAULT_LANGUAGE")))
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}

	if !slices.Contains(languages, defaultLanguage) {
		return MatcherConfig{}, fmt.Errorf("DEFAULT_LANGUAGE %q not in SUPPORTED_LANGUAGES %v", defaultLanguage, languages)
	}

	threshold := 0.3
	if raw := os.Getenv("CONFIDENCE_THRESHOLD"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		// zero would accept messages sharing no word with any sample
		if err != nil || v <= 0 || v > 1 {
			return MatcherConfig{}, fmt.Errorf("invalid CONFIDENCE_THRESHOLD: %q", raw)
		}
		threshold = v
	}

	policy := strings.ToLower(os.Getenv("REPLY_POLICY"))
	if policy == "" {
		policy = knowledge.PolicyFirst
	}

	if policy != knowledge.PolicyFirst && policy != knowledge.PolicyRandom {
		return MatcherConfig{}, fmt.Errorf("unknown REPLY_POLICY: %s", policy)
	}

	var seed int64
	if s, err := strconv.ParseInt(os.Getenv("REPLY_SEED"), 10, 64); err == nil {
		seed = s
	}

	return MatcherConfig{
		DefaultLanguage:    defaultLanguage,
		SupportedLanguages: languages,
		Threshold:          threshold,
		ReplyPolicy:        policy,
		ReplySeed:          seed,
	}, nil
}

func loadSessionConfig() (SessionConfig, error) {
	store := strings.ToLower(os.Getenv("SESSION_STORE"))
	if store == "" {
		store = StoreMemory
	}

	redisURL := os.Getenv("REDIS_URL")

	switch store {
	case StoreMemory:
	case StoreRedis:
		if redisURL == "" {
			redisURL = "redis://localhost:6379"
		}
	default:
		return SessionConfig{}, fmt.Errorf("unknown SESSION_STORE: %s", store)
	}

	ttlHours := 24
	if h, err := strconv.Atoi(os.Getenv("SESSION_TTL_HOURS")); err == nil && h > 0 {
		ttlHours = h
	}

	maxSessions := 1000
	if n, err := strconv.Atoi(os.Getenv("MAX_SESSIONS")); err == nil && n > 0 {
		maxSessions = n
	}

	schedule := os.Getenv("SESSION_SWEEP_SCHEDULE")
	if schedule == "" {
		schedule = "@every 5m"
	}

	return SessionConfig{
		Store:         store,
		RedisURL:      redisURL,
		TTL:           time.Duration(ttlHours) * time.Hour,
		MaxSessions:   maxSessions,
		SweepSchedule: schedule,
	}, nil
}

func loadCORSConfig() CORSConfig {
	origins := splitList(os.Getenv("ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	methods := splitList(os.Getenv("ALLOWED_METHODS"))
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "DELETE"}
	}

	headers := splitList(os.Getenv("ALLOWED_HEADERS"))
	if len(headers) == 0 {
		headers = []string{"*"}
	}

	return CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
	}
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	}
}

func loadMultiBotConfig() MultiBot {
	telegramToken := os.Getenv("TELEGRAM_TOKEN")
	discordToken := os.Getenv("DISCORD_TOKEN")

	return MultiBot{
		Telegram: BotInstance{
			Enabled: telegramToken != "",
			Token:   telegramToken,
		},
		Discord: BotInstance{
			Enabled: discordToken != "",
			Token:   discordToken,
		},
	}
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
