package config

import (
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
)

var (
	RunAddress      string
	DatabaseURI     string
	LogLevel        string
	JWTSecret       string
	TokenTTL        time.Duration
	ScheduleZone    string
	ScheduleRefresh time.Duration
	LoginRate       time.Duration
	LoginBurst      int
	AdminUsername   string
)

func ParseFlags() {
	// .env is optional
	_ = godotenv.Load()

	flag.StringVar(&RunAddress, "a", ":8080", "address to run server")
	flag.StringVar(&DatabaseURI, "d", "", "database uri")
	flag.StringVar(&LogLevel, "l", "info", "log level")
	flag.StringVar(&JWTSecret, "s", "change-me", "jwt signing secret")
	flag.DurationVar(&TokenTTL, "t", 24*time.Hour, "session token lifetime")
	flag.StringVar(&ScheduleZone, "z", "America/Bogota", "time zone for withdrawal schedules")
	flag.DurationVar(&ScheduleRefresh, "r", 30*time.Second, "withdrawal schedule refresh interval")
	flag.DurationVar(&LoginRate, "login-rate", 2*time.Second, "minimum interval between login attempts per ip")
	flag.IntVar(&LoginBurst, "login-burst", 5, "login attempts allowed in a burst")
	flag.StringVar(&AdminUsername, "admin", "", "username that is granted the admin role on registration")
	flag.Parse()

	applyEnv()
}

func applyEnv() {
	if envRunAddr := os.Getenv("RUN_ADDRESS"); envRunAddr != "" {
		RunAddress = envRunAddr
	}
	if databaseURI := os.Getenv("DATABASE_URI"); databaseURI != "" {
		DatabaseURI = databaseURI
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		LogLevel = logLevel
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		JWTSecret = secret
	}
	if ttl := os.Getenv("TOKEN_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			TokenTTL = d
		}
	}
	if admin := os.Getenv("ADMIN_USERNAME"); admin != "" {
		AdminUsername = admin
	}
	if zone := os.Getenv("SCHEDULE_ZONE"); zone != "" {
		ScheduleZone = zone
	}
	if refresh := os.Getenv("SCHEDULE_REFRESH"); refresh != "" {
		if d, err := time.ParseDuration(refresh); err == nil {
			ScheduleRefresh = d
		}
	}
}
