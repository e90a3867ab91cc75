package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Server
	Port      int
	UploadDir string

	// Database
	DBPath string

	// Paystack
	PaystackSecretKey string
	PaystackBaseURL   string
	CallbackBaseURL   string

	// Telegram notifications
	TelegramBotToken    string
	TelegramAdminChatID int64
}

func Load() *Config {
	return &Config{
		// Server
		Port:      getEnvInt("PORT", 8080),
		UploadDir: getEnv("UPLOAD_DIR", "./uploads"),

		// Database
		DBPath: getEnv("DB_PATH", "./fanclub.db"),

		// Paystack
		PaystackSecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
		PaystackBaseURL:   strings.TrimSuffix(getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"), "/"),
		CallbackBaseURL:   strings.TrimSuffix(getEnv("CALLBACK_BASE_URL", ""), "/"),

		// Telegram notifications
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAdminChatID: getEnvInt64("TELEGRAM_ADMIN_CHAT_ID", 0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}
