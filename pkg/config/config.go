package config

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Base URL for the reservation system
	BaseURL = "https://www.cm9.eprs.jp/shinagawa/web"

	// Activity select value for tennis
	TennisPurpose = "31000000_31011700"
)

// Config holds the application configuration
type Config struct {
	BaseURL  string
	UserID   string
	Password string

	Headless       bool
	BrowserTimeout time.Duration
	PollInterval   time.Duration

	LoginRetryInterval time.Duration
	LoginMaxAttempts   int // 0 retries forever

	Headcount int

	DatabaseURL string
	StatusAddr  string
	DebugDir    string
	LogDir      string
	Environment string

	LineChannelToken string
	LineUserID       string
	IsTestMode       bool
	NoNotify         bool
}

// Venue is a park to scan. Lower Priority is booked first.
type Venue struct {
	ID       string // bcd
	Name     string
	AreaCode string // value of the park selector
	Priority int
}

// DefaultVenues are the Shinagawa parks with tennis courts
var DefaultVenues = []Venue{
	{ID: "1040", Name: "しながわ区民公園", AreaCode: "1200_1040", Priority: 1},
	{ID: "1010", Name: "しながわ中央公園", AreaCode: "1400_1010", Priority: 2},
	{ID: "1030", Name: "八潮北公園", AreaCode: "1500_1030", Priority: 3},
	{ID: "1020", Name: "東品川公園", AreaCode: "1400_1020", Priority: 4},
}

// GetTargets returns the venues to scan ordered by priority.
// Test mode only scans the top priority venue.
func GetTargets(isTestMode bool) []Venue {
	venues := make([]Venue, len(DefaultVenues))
	copy(venues, DefaultVenues)
	sort.SliceStable(venues, func(i, j int) bool {
		return venues[i].Priority < venues[j].Priority
	})
	if isTestMode {
		return venues[:1]
	}
	return venues
}

// Load reads configuration from .env (optional) and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️ No .env file found, using environment variables")
	}

	var err error
	cfg := &Config{
		BaseURL:          getEnv("BASE_URL", BaseURL),
		UserID:           os.Getenv("USER_ID"),
		Password:         os.Getenv("PASSWORD"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		StatusAddr:       getEnv("STATUS_ADDR", ""),
		DebugDir:         getEnv("DEBUG_DIR", "debug"),
		LogDir:           getEnv("LOG_DIR", "logs"),
		Environment:      getEnv("ENV", "development"),
		LineChannelToken: os.Getenv("LINE_CHANNEL_TOKEN"),
		LineUserID:       os.Getenv("LINE_USER_ID"),
	}

	if cfg.UserID == "" || cfg.Password == "" {
		return nil, fmt.Errorf("USER_ID and PASSWORD are required")
	}

	if cfg.Headless, err = getEnvAsBool("HEADLESS", true); err != nil {
		return nil, err
	}
	if cfg.BrowserTimeout, err = getEnvAsDuration("BROWSER_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getEnvAsDuration("POLL_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LoginRetryInterval, err = getEnvAsDuration("LOGIN_RETRY_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LoginMaxAttempts, err = getEnvAsInt("LOGIN_MAX_ATTEMPTS", 0); err != nil {
		return nil, err
	}
	if cfg.LoginMaxAttempts < 0 {
		return nil, fmt.Errorf("LOGIN_MAX_ATTEMPTS must not be negative")
	}
	if cfg.Headcount, err = getEnvAsInt("HEADCOUNT", 2); err != nil {
		return nil, err
	}
	if cfg.Headcount < 1 {
		return nil, fmt.Errorf("HEADCOUNT must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q is not a valid integer: %w", key, valStr, err)
	}
	return val, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return false, fmt.Errorf("env %s value %q is not a valid bool: %w", key, valStr, err)
	}
	return val, nil
}

// getEnvAsDuration parses values like "30s" or "5m"
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}
