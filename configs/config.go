// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	// Shared filesystem roots (required)
	SHARED_ROOT   string
	PRODUCTS_ROOT string

	// Path projection
	CLIENT_MOUNT_PREFIX string

	// Barcode linking service
	BARCODE_LINK_URL             string
	BARCODE_LINK_TIMEOUT         time.Duration
	BARCODE_LINK_ENABLED         bool
	BARCODE_LINK_BREAKER_MAX_FAILS uint32
	BARCODE_LINK_BREAKER_RESET   time.Duration

	// Inspection orchestration
	INSPECTION_DEADLINE time.Duration // 0 = no deadline
	WORKER_POOL_MAX      int

	// Session lifecycle
	SESSION_TTL time.Duration

	// Server configuration
	PORT            string
	ALLOWED_ORIGINS string

	// MongoDB (audit trail only - never authoritative, see SPEC_FULL.md §3)
	MONGO_URI     string
	MONGO_DB_NAME string
	MONGO_ENABLED bool

	// Capability provider selection
	OCR_PROVIDER      string // "stub" | "gemini"
	FEATURE_EXTRACTOR string // "local" | "gemini"
	GEMINI_API_KEY    string
	GEMINI_MODEL_NAME string
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	SHARED_ROOT = getEnv("SHARED_ROOT", "")
	if SHARED_ROOT == "" {
		log.Fatal("SHARED_ROOT environment variable is required")
	}
	PRODUCTS_ROOT = getEnv("PRODUCTS_ROOT", "")
	if PRODUCTS_ROOT == "" {
		log.Fatal("PRODUCTS_ROOT environment variable is required")
	}

	CLIENT_MOUNT_PREFIX = getEnv("CLIENT_MOUNT_PREFIX", "/mnt/visual-aoi-shared")

	BARCODE_LINK_URL = getEnv("BARCODE_LINK_URL", "")
	BARCODE_LINK_TIMEOUT = getEnvDuration("BARCODE_LINK_TIMEOUT", 3*time.Second)
	BARCODE_LINK_ENABLED = getEnvBool("BARCODE_LINK_ENABLED", true)
	BARCODE_LINK_BREAKER_MAX_FAILS = uint32(getEnvInt("BARCODE_LINK_BREAKER_MAX_FAILS", 5))
	BARCODE_LINK_BREAKER_RESET = getEnvDuration("BARCODE_LINK_BREAKER_RESET", 30*time.Second)

	INSPECTION_DEADLINE = getEnvDuration("INSPECTION_DEADLINE", 0)
	WORKER_POOL_MAX = getEnvInt("WORKER_POOL_MAX", 0) // 0 => hardware parallelism

	SESSION_TTL = getEnvDuration("SESSION_TTL", 7*24*time.Hour)

	PORT = getEnv("PORT", "8080")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")

	MONGO_URI = getEnv("MONGO_URI", "")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "visual_aoi")
	MONGO_ENABLED = MONGO_URI != ""

	OCR_PROVIDER = getEnv("OCR_PROVIDER", "stub")
	FEATURE_EXTRACTOR = getEnv("FEATURE_EXTRACTOR", "local")
	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	GEMINI_MODEL_NAME = getEnv("GEMINI_MODEL_NAME", "gemini-2.5-flash")

	if OCR_PROVIDER == "gemini" && GEMINI_API_KEY == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required when OCR_PROVIDER=gemini")
	}
	if FEATURE_EXTRACTOR == "gemini" && GEMINI_API_KEY == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required when FEATURE_EXTRACTOR=gemini")
	}

	log.Println("✓ Configuration loaded successfully")
}

// Helper functions
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
