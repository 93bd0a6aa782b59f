package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	StoreDriver string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NotifyQueue   string

	NotifySMSProvider   string
	NotifyEmailProvider string
	NotifyWebhookToken  string
	NotifyRemindAt      int
	NotifyConcurrency   int
	NotifyAdvanceDepth  int

	DefaultConsultation time.Duration
	AverageWindow       int
	AverageMinSamples   int

	RetentionDays int
	RetentionCron string
	Location      *time.Location

	RateLimitPerMinute      int
	RateLimitBurst          int
	StaffRateLimitPerMinute int
	StaffRateLimitBurst     int

	// StaffUsers maps username to bcrypt hash. Only used by the memory driver;
	// the postgres driver reads the staff table.
	StaffUsers map[string]string
}

// Load reads a .env file when present, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if driver == "" {
		driver = "memory"
	}
	notifyQueue := os.Getenv("NOTIFY_QUEUE")
	if notifyQueue == "" {
		notifyQueue = "notifications"
	}
	retentionCron := os.Getenv("RETENTION_CRON")
	if retentionCron == "" {
		retentionCron = "5 0 * * *"
	}

	return Config{
		Port:                    port,
		StoreDriver:             driver,
		DatabaseURL:             os.Getenv("DB_DSN"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 readInt("REDIS_DB", 0),
		NotifyQueue:             notifyQueue,
		NotifySMSProvider:       os.Getenv("NOTIFY_SMS_PROVIDER"),
		NotifyEmailProvider:     os.Getenv("NOTIFY_EMAIL_PROVIDER"),
		NotifyWebhookToken:      os.Getenv("NOTIFY_WEBHOOK_TOKEN"),
		NotifyRemindAt:          readInt("NOTIFY_REMIND_AT_POSITION", 2),
		NotifyConcurrency:       readInt("NOTIFY_CONCURRENCY", 5),
		NotifyAdvanceDepth:      readInt("NOTIFY_ADVANCE_DEPTH", 5),
		DefaultConsultation:     readDurationMinutes("DEFAULT_CONSULTATION_MINUTES", 15),
		AverageWindow:           readInt("AVERAGE_WINDOW", 10),
		AverageMinSamples:       readInt("AVERAGE_MIN_SAMPLES", 3),
		RetentionDays:           readInt("RETENTION_DAYS", 1),
		RetentionCron:           retentionCron,
		Location:                readLocation("TIMEZONE"),
		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		StaffRateLimitPerMinute: readInt("STAFF_RATE_LIMIT_PER_MIN", 600),
		StaffRateLimitBurst:     readInt("STAFF_RATE_LIMIT_BURST", 120),
		StaffUsers:              readStaffUsers("STAFF_USERS"),
	}
}

func readDurationMinutes(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Minute
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readLocation(key string) *time.Location {
	name := strings.TrimSpace(os.Getenv(key))
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("config: unknown %s %q, using local time", key, name)
		return time.Local
	}
	return loc
}

// readStaffUsers parses "user:hash,user2:hash2". bcrypt hashes contain no
// commas, and the first colon separates the name.
func readStaffUsers(key string) map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		name, hash, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || hash == "" {
			continue
		}
		users[name] = hash
	}
	return users
}
