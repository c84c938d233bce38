package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Auth       AuthConfig
	Tickets    TicketConfig
	Migrations MigrationConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr              string
	Enabled           bool
	OrganizerCacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	TicketPurchased  string
	QRIssued         string
	TicketCheckedIn  string
	PaymentConfirmed string
	EventUpserted    string
	TeamUpserted     string
}

type AuthConfig struct {
	OIDCIssuer  string
	JWTSecret   string
	AdminRole   string
	ServiceRole string
}

type TicketConfig struct {
	QRTokenTTL time.Duration
	QRPNGSize  int
}

type MigrationConfig struct {
	Dir         string
	AutoMigrate bool
}

type LoggingConfig struct {
	ToFile bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:              getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled:           getEnvBool("REDIS_ENABLED", true),
			OrganizerCacheTTL: time.Duration(getEnvInt("ORGANIZER_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "checkin-service-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				TicketPurchased:  getEnv("KAFKA_TOPIC_TICKET_PURCHASED", "ticketing.ticket.purchased"),
				QRIssued:         getEnv("KAFKA_TOPIC_QR_ISSUED", "ticketing.qr.issued"),
				TicketCheckedIn:  getEnv("KAFKA_TOPIC_TICKET_CHECKED_IN", "ticketing.ticket.checked_in"),
				PaymentConfirmed: getEnv("KAFKA_TOPIC_PAYMENT_CONFIRMED", "ticketing.payments.confirmed"),
				EventUpserted:    getEnv("KAFKA_TOPIC_EVENT_UPSERTED", "catalog.events.upserted"),
				TeamUpserted:     getEnv("KAFKA_TOPIC_TEAM_UPSERTED", "catalog.teams.upserted"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer:  getEnv("OIDC_ISSUER", ""),
			JWTSecret:   getEnv("AUTH_JWT_SECRET", ""),
			AdminRole:   getEnv("ADMIN_ROLE", "admin"),
			ServiceRole: getEnv("SERVICE_ROLE", "service"),
		},
		Tickets: TicketConfig{
			QRTokenTTL: time.Duration(getEnvInt("QR_TOKEN_TTL_MINUTES", 1440)) * time.Minute,
			QRPNGSize:  getEnvInt("QR_PNG_SIZE", 256),
		},
		Migrations: MigrationConfig{
			Dir:         getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate: getEnvBool("AUTO_MIGRATE", false),
		},
		Logging: LoggingConfig{
			ToFile: getEnvBool("LOG_TO_FILE", true),
		},
	}
}

// ConsumedTopics are the topics the service's consumer group reads.
func (t TopicConfig) ConsumedTopics() []string {
	return []string{t.PaymentConfirmed, t.EventUpserted, t.TeamUpserted}
}

// All returns every topic the service produces or consumes.
func (t TopicConfig) All() []string {
	return append([]string{t.TicketPurchased, t.QRIssued, t.TicketCheckedIn}, t.ConsumedTopics()...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
