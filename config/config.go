package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 从环境变量读取
type Config struct {
	Port string
	Env  string

	DBDriver   string // postgres | sqlite
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	SQLitePath string

	RedisAddr string
	RedisPwd  string
	CacheTTL  time.Duration

	WebOrigins      []string // WEB_ORIGIN，逗号分隔
	LoanDays        int
	ReservationDays int
	SeedOnStart     bool
}

// LoadEnv 读取 .env；文件不存在不算错误
func LoadEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load 读环境变量；调用前先 LoadEnv
func Load() Config {
	return Config{
		Port: get("PORT", "3001"),
		Env:  get("APP_ENV", "development"),

		DBDriver:   strings.ToLower(get("DB_DRIVER", "postgres")),
		DBHost:     get("DB_HOST", "127.0.0.1"),
		DBUser:     get("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     get("DB_NAME", "biblioteca"),
		DBPort:     get("DB_PORT", "5432"),
		DBSSLMode:  get("DB_SSLMODE", "disable"),
		SQLitePath: get("SQLITE_PATH", "data/biblioteca.db"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisPwd:  os.Getenv("REDIS_PASSWORD"),
		CacheTTL:  time.Duration(getInt("CACHE_TTL_SECONDS", 300)) * time.Second,

		WebOrigins:      getList("WEB_ORIGIN", "http://localhost:5173"),
		LoanDays:        getInt("LOAN_DAYS", 30),
		ReservationDays: getInt("RESERVATION_DAYS", 7),
		SeedOnStart:     getBool("SEED_ON_START", false),
	}
}

func (c Config) Production() bool { return c.Env == "production" }

func get(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func getList(k, def string) []string {
	var out []string
	for _, v := range strings.Split(get(k, def), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getInt(k string, def int) int {
	n, err := strconv.Atoi(get(k, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getBool(k string, def bool) bool {
	b, err := strconv.ParseBool(get(k, ""))
	if err != nil {
		return def
	}
	return b
}
