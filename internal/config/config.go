package config

import (
	"os"
)

type Config struct {
	DatabaseURL       string
	UniversalisURL    string
	Port              string
	Environment       string
	DefaultDatacenter string // 未指定伺服器時的預設資料中心

	// 單次查詢的物品數上限，超過時回應會附帶警告並截斷
	SearchResultLimit int
}

func Load() *Config {
	return &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		UniversalisURL:    getEnv("UNIVERSALIS_URL", "https://universalis.app"),
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		DefaultDatacenter: getEnv("DEFAULT_DATACENTER", "陸行鳥"),
		SearchResultLimit: 100,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
