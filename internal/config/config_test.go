package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 10.0, cfg.Fare.BaseFare)
	assert.Equal(t, 3.0, cfg.Fare.PerKmRate)
	assert.Equal(t, 3.0, cfg.Fare.MinDistanceKm)
	assert.Equal(t, 12.0, cfg.Fare.MaxDistanceKm)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("FARE_BASE", "12.5")
	t.Setenv("FARE_PER_KM", "not-a-number")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("AMQP_ENABLED", "true")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg := Load()

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 12.5, cfg.Fare.BaseFare)
	assert.Equal(t, 3.0, cfg.Fare.PerKmRate, "invalid values fall back to the default")
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.AMQP.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5433", User: "u", Password: "p", DBName: "rides", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=rides sslmode=disable", cfg.DSN())
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.Auth.JWTSecret = "0123456789abcdef"
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = DriverMemory
	cfg.Feed.Source = "postgres"
	cfg.Fare.MaxDistanceKm = 1
	cfg.Auth.JWTSecret = "short"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEED_SOURCE=postgres")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "FARE_MIN_DISTANCE_KM")
}
