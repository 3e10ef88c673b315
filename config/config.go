package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const defaultVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

type Config struct {
	ServerPort string
	DBPath     string
	LogLevel   string

	// Bearer token signing secret
	JWTSecret string

	// Trust levels for the apikey header. An empty AnonKey leaves public
	// routes open.
	AnonKey        string
	ServiceRoleKey string

	// Guest progress cookie keys
	GuestHashKey  []byte
	GuestBlockKey []byte

	VisionAPIKey   string
	VisionEndpoint string
	OCRMaxEdge     int

	StripeSecretKey string

	TrialLength    time.Duration
	GuestPointsCap int

	// Set when a secret had to be generated because the env var was empty.
	GeneratedSecrets []string
}

// Load reads configuration from the environment, after loading a .env file
// when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:      ":" + getEnv("PORT", "8080"),
		DBPath:          getEnv("DATABASE_PATH", "./winequiz.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		AnonKey:         os.Getenv("ANON_KEY"),
		ServiceRoleKey:  os.Getenv("SERVICE_ROLE_KEY"),
		VisionAPIKey:    os.Getenv("VISION_API_KEY"),
		VisionEndpoint:  getEnv("VISION_ENDPOINT", defaultVisionEndpoint),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
	}

	maxEdge, err := getEnvInt("OCR_MAX_EDGE", 1600)
	if err != nil {
		return nil, err
	}
	if maxEdge <= 0 {
		return nil, fmt.Errorf("OCR_MAX_EDGE must be positive")
	}
	cfg.OCRMaxEdge = maxEdge

	trialDays, err := getEnvInt("TRIAL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.TrialLength = time.Duration(trialDays) * 24 * time.Hour

	guestCap, err := getEnvInt("GUEST_POINTS_CAP", 500)
	if err != nil {
		return nil, err
	}
	cfg.GuestPointsCap = guestCap

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = generateSecret(32)
		cfg.GeneratedSecrets = append(cfg.GeneratedSecrets, "JWT_SECRET")
	}

	cfg.GuestHashKey = []byte(os.Getenv("GUEST_HASH_KEY"))
	if len(cfg.GuestHashKey) == 0 {
		cfg.GuestHashKey = []byte(generateSecret(32))
		cfg.GeneratedSecrets = append(cfg.GeneratedSecrets, "GUEST_HASH_KEY")
	}

	// Block key must be 16, 24 or 32 bytes for AES.
	cfg.GuestBlockKey = []byte(os.Getenv("GUEST_BLOCK_KEY"))
	switch len(cfg.GuestBlockKey) {
	case 0:
		cfg.GuestBlockKey = randomBytes(32)
		cfg.GeneratedSecrets = append(cfg.GeneratedSecrets, "GUEST_BLOCK_KEY")
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("GUEST_BLOCK_KEY must be 16, 24 or 32 bytes")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func generateSecret(n int) string {
	return base64.StdEncoding.EncodeToString(randomBytes(n))
}

func randomBytes(n int) []byte {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("failed to generate secret: %v", err))
	}
	return bytes
}
