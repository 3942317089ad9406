package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	AI        AIConfig
	Audit     AuditConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Tracing   TracingConfig
	LabImport LabImportConfig
}

type ServerConfig struct {
	Port        int
	Env         string
	CORSOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// AIConfig configures the hosted chat-completion endpoint.
type AIConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	SummaryMaxTokens int
	RiskMaxTokens    int
	Temperature      float64
	Timeout          time.Duration

	// Circuit breaker: consecutive failures before the breaker opens,
	// and how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// AuditConfig selects the audit log backend: "postgres" or "kurrentdb".
type AuditConfig struct {
	Backend string
}

type RateLimitConfig struct {
	RPS   int
	Burst int
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRate  float64
}

// LabImportConfig holds the connection to a hospital LIS (SQL Server).
type LabImportConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	InstitutionCode string
	LabResultTable  string
	PatientTable    string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	setDefaults(v)

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetInt("SERVER_PORT"),
			Env:         v.GetString("ENV"),
			CORSOrigins: splitAndTrim(v.GetString("CORS_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Database: v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
			MinConns: v.GetInt32("DB_MIN_CONNS"),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  v.GetBool("KURRENTDB_ENABLED"),
			Host:     v.GetString("KURRENTDB_HOST"),
			Port:     v.GetInt("KURRENTDB_PORT"),
			Insecure: v.GetBool("KURRENTDB_INSECURE"),
			Username: v.GetString("KURRENTDB_USERNAME"),
			Password: v.GetString("KURRENTDB_PASSWORD"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			Issuer:    v.GetString("JWT_ISSUER"),
			Audience:  v.GetString("JWT_AUDIENCE"),
		},
		AI: AIConfig{
			BaseURL:          strings.TrimRight(v.GetString("AI_BASE_URL"), "/"),
			APIKey:           v.GetString("AI_API_KEY"),
			Model:            v.GetString("AI_MODEL"),
			SummaryMaxTokens: v.GetInt("AI_SUMMARY_MAX_TOKENS"),
			RiskMaxTokens:    v.GetInt("AI_RISK_MAX_TOKENS"),
			Temperature:      v.GetFloat64("AI_TEMPERATURE"),
			Timeout:          v.GetDuration("AI_TIMEOUT"),
			BreakerFailures:  v.GetUint32("AI_BREAKER_FAILURES"),
			BreakerCooldown:  v.GetDuration("AI_BREAKER_COOLDOWN"),
		},
		Audit: AuditConfig{
			Backend: strings.ToLower(v.GetString("AUDIT_BACKEND")),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetInt("RATE_LIMIT_RPS"),
			Burst: v.GetInt("RATE_LIMIT_BURST"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Tracing: TracingConfig{
			Enabled:     v.GetBool("TRACING_ENABLED"),
			Endpoint:    v.GetString("TRACING_ENDPOINT"),
			ServiceName: v.GetString("TRACING_SERVICE_NAME"),
			SampleRate:  v.GetFloat64("TRACING_SAMPLE_RATE"),
		},
		LabImport: LabImportConfig{
			Host:            v.GetString("LIS_HOST"),
			Port:            v.GetInt("LIS_PORT"),
			User:            v.GetString("LIS_USER"),
			Password:        v.GetString("LIS_PASSWORD"),
			Database:        v.GetString("LIS_DATABASE"),
			SSLMode:         v.GetString("LIS_SSLMODE"),
			InstitutionCode: v.GetString("LIS_INSTITUTION_CODE"),
			LabResultTable:  v.GetString("LIS_LAB_RESULT_TABLE"),
			PatientTable:    v.GetString("LIS_PATIENT_TABLE"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "*")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "healthflow")
	v.SetDefault("DB_PASSWORD", "healthflow")
	v.SetDefault("DB_NAME", "healthflow")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 5)

	v.SetDefault("KURRENTDB_ENABLED", false)
	v.SetDefault("KURRENTDB_HOST", "localhost")
	v.SetDefault("KURRENTDB_PORT", 2113)
	v.SetDefault("KURRENTDB_INSECURE", true)

	v.SetDefault("JWT_SECRET", "dev-secret-change-in-prod")

	v.SetDefault("AI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_SUMMARY_MAX_TOKENS", 300)
	v.SetDefault("AI_RISK_MAX_TOKENS", 200)
	v.SetDefault("AI_TEMPERATURE", 0.2)
	v.SetDefault("AI_TIMEOUT", 30*time.Second)
	v.SetDefault("AI_BREAKER_FAILURES", 5)
	v.SetDefault("AI_BREAKER_COOLDOWN", 30*time.Second)

	v.SetDefault("AUDIT_BACKEND", "postgres")

	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SERVICE_NAME", "healthflow")
	v.SetDefault("TRACING_SAMPLE_RATE", 0.1)

	v.SetDefault("LIS_PORT", 1433)
	v.SetDefault("LIS_SSLMODE", "disable")
	v.SetDefault("LIS_LAB_RESULT_TABLE", "dbo.LabResults")
	v.SetDefault("LIS_PATIENT_TABLE", "dbo.Patients")
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate checks that the configuration is safe to serve with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.IsProduction() {
		if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "dev-secret-change-in-prod" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.AI.APIKey == "" {
			return fmt.Errorf("AI_API_KEY must be set in production")
		}
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		return fmt.Errorf("AI_TEMPERATURE must be between 0 and 1, got %v", c.AI.Temperature)
	}
	if c.AI.SummaryMaxTokens <= 0 || c.AI.RiskMaxTokens <= 0 {
		return fmt.Errorf("AI max tokens must be positive")
	}
	switch c.Audit.Backend {
	case "postgres":
	case "kurrentdb":
		if !c.KurrentDB.Enabled {
			return fmt.Errorf("AUDIT_BACKEND=kurrentdb requires KURRENTDB_ENABLED=true")
		}
	default:
		return fmt.Errorf("AUDIT_BACKEND must be \"postgres\" or \"kurrentdb\", got %q", c.Audit.Backend)
	}
	return nil
}

func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
