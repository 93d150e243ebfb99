package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithPath_Defaults(t *testing.T) {
	path := writeEnvFile(t, "APP_NAME=studio-booking-test\n")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, "studio-booking-test", cfg.App.Name)
	assert.Equal(t, 8083, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Booking.OperationTimeout)
	assert.Equal(t, "staff", cfg.Booking.StaffRole)
	assert.Equal(t, "kafka", cfg.Notifier.Transport)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "studio.notifications", cfg.Kafka.NotificationTopic)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadWithPath_Overrides(t *testing.T) {
	path := writeEnvFile(t, `APP_ENVIRONMENT=staging
KAFKA_BROKERS=k1:9092, k2:9092
NOTIFIER_TRANSPORT=REDIS
BOOKING_OPERATION_TIMEOUT=2s
`)

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis", cfg.Notifier.Transport)
	assert.Equal(t, 2*time.Second, cfg.Booking.OperationTimeout)
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadWithPath_MissingFile(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:      AppConfig{Name: "studio-booking", Environment: "development"},
			Server:   ServerConfig{Port: 8083},
			JWT:      JWTConfig{Secret: "secret"},
			Booking:  BookingConfig{OperationTimeout: time.Second},
			Notifier: NotifierConfig{Transport: "log"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing app name", mutate: func(c *Config) { c.App.Name = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "default secret in production", mutate: func(c *Config) {
			c.App.Environment = "production"
			c.JWT.Secret = "your-secret-key-change-in-production"
		}, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Booking.OperationTimeout = 0 }, wantErr: true},
		{name: "unknown transport", mutate: func(c *Config) { c.Notifier.Transport = "smtp" }, wantErr: true},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Notifier.Transport = "kafka" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
