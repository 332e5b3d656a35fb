package config // package config loads application configuration from environment variables

import (
	"log" // log reports configuration errors before the structured logger exists
	"os"  // os provides access to environment variables

	"github.com/joho/godotenv" // godotenv loads a local .env file into the environment
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	DBMigrate    bool   // apply the embedded schema on startup
	JWTSecret    string // secret used to verify diner tokens; empty disables identity
	LogLevel     string // logrus level name
	LogFormat    string // "text" or "json"
	AMQPURL      string // RabbitMQ URL; empty disables events
	AuditLog     bool   // run the session audit consumer in-process
	ShutdownSecs int    // graceful shutdown timeout in seconds
}

// Load reads an optional .env file and then the environment.  Required
// variables are enforced by must() and missing values cause the program
// to exit with a fatal log message.
func Load() Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return Config{
		Env:          envStr("APP_ENV", "dev"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		DBMigrate:    envBool("DB_MIGRATE", true),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		LogFormat:    envStr("LOG_FORMAT", "text"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AuditLog:     envBool("AUDIT_LOG_ENABLED", true),
		ShutdownSecs: envInt("SHUTDOWN_TIMEOUT_SECONDS", 10),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
