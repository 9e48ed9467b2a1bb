package recalc

import (
	"os"
	"strconv"
	"time"

	"github.com/goliatone/go-errors"
)

// Config holds every runtime setting. Built once at startup and never
// mutated afterwards.
type Config struct {
	Port           string
	DatabaseURL    string
	SigningKey     string
	TokenLifetime  time.Duration
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	FrontendOrigin string
	TemplatesDir   string
	WorkerInterval time.Duration
}

// ConfigFromEnv reads the configuration from the environment. Missing
// secrets fail startup; everything else has a development default.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Port:           getenv("PORT", "8000"),
		DatabaseURL:    getenv("DATABASE_URL", "file:recalc.db"),
		SigningKey:     os.Getenv("JWT_SECRET"),
		SMTPHost:       getenv("SMTP_HOST", "localhost"),
		SMTPUsername:   os.Getenv("SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:       getenv("SMTP_FROM", "no-reply@recalc.local"),
		FrontendOrigin: getenv("FRONTEND_ORIGIN", "http://localhost:3000"),
		TemplatesDir:   getenv("TEMPLATES_DIR", "./templates"),
	}

	if cfg.SigningKey == "" {
		return cfg, errors.New("JWT_SECRET must be set", errors.CategoryBadInput)
	}

	minutes, err := getenvInt("JWT_EXPIRED_IN", 60)
	if err != nil {
		return cfg, err
	}
	cfg.TokenLifetime = time.Duration(minutes) * time.Minute

	cfg.SMTPPort, err = getenvInt("SMTP_PORT", 587)
	if err != nil {
		return cfg, err
	}

	workerSeconds, err := getenvInt("NOTIFY_INTERVAL_SECONDS", 30)
	if err != nil {
		return cfg, err
	}
	cfg.WorkerInterval = time.Duration(workerSeconds) * time.Second

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryBadInput, key+" must be an integer")
	}

	return n, nil
}
