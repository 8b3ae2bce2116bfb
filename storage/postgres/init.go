package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrMissingURL is returned when no database URL was configured.
var ErrMissingURL = errors.New("database url not configured")

// Config holds connection and pool settings.
type Config struct {
	// URL is either a postgres:// URL or a key=value DSN.
	URL string
	// ServiceKey is used as the password when URL carries none.
	ServiceKey string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	// LogLevel is one of silent, error, warn, info.
	LogLevel      string
	SlowThreshold time.Duration
}

// DSN combines the database URL with the service credential.
func DSN(rawURL, serviceKey string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrMissingURL
	}
	if !strings.Contains(rawURL, "://") {
		if serviceKey != "" && !strings.Contains(rawURL, "password=") {
			rawURL += " password=" + serviceKey
		}
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	if serviceKey != "" {
		if _, ok := u.User.Password(); !ok {
			user := u.User.Username()
			if user == "" {
				user = "postgres"
			}
			u.User = url.UserPassword(user, serviceKey)
		}
	}
	return u.String(), nil
}

var dsnPassword = regexp.MustCompile(`password=\S+`)

// RedactURL hides the password of a URL or key=value DSN for display.
func RedactURL(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		return dsnPassword.ReplaceAllString(rawURL, "password=****")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "****"
	}
	return u.Redacted()
}

// InitDB connects to PostgreSQL.
func InitDB(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	dsn, err := DSN(cfg.URL, cfg.ServiceKey)
	if err != nil {
		return nil, err
	}
	return Open(postgres.Open(dsn), cfg, log)
}

// Open connects through any gorm dialector and applies the pool settings.
func Open(dialector gorm.Dialector, cfg Config, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect db failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	log.Info("database connected", zap.String("dialect", dialector.Name()))
	return db, nil
}

// Migrate creates or updates the documents and document_analyses tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&Document{}, &Analysis{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
