package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config collects every process-wide setting in one place so the token maker,
// uploader and handlers can be constructed with fixed values in tests.
type Config struct {
	Env  string
	Port string

	MongoURI     string
	DatabaseName string

	AllowedOrigins []string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	UploadsRoot    string
	MaxUploadSize  int64
	MaxUploadFiles int
	AllowedExt     []string
	AllowedMime    []string

	AdminEmail    string
	AdminUsername string
	AdminPassword string
}

func Load() Config {
	return Config{
		Env:  get("APP_ENV", "dev"),
		Port: get("PORT", "8080"),

		MongoURI:     get("MONGODB_URI", "mongodb://localhost:27017"),
		DatabaseName: get("DATABASE_NAME", "kitabi"),

		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),

		JWTSecret:  get("JWT_SECRET", "kitabi-secret-key"),
		TokenTTL:   time.Duration(getInt("JWT_EXPIRE_DAYS", 7)) * 24 * time.Hour,
		BcryptCost: getInt("BCRYPT_ROUNDS", 12),

		UploadsRoot:    get("UPLOADS_ROOT", "uploads"),
		MaxUploadSize:  int64(getInt("MAX_UPLOAD_SIZE_MB", 100)) << 20,
		MaxUploadFiles: getInt("MAX_UPLOAD_FILES", 5),
		AllowedExt: splitList(get("ALLOWED_FILE_EXTENSIONS",
			".epub,.mobi,.pdf,.mp3,.m4a,.wav")),
		AllowedMime: splitList(get("ALLOWED_FILE_MIME_TYPES",
			"application/epub+zip,application/x-mobipocket-ebook,application/pdf,audio/mpeg,audio/mp4,audio/wav")),

		AdminEmail:    strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		AdminUsername: get("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

func get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(strings.ToLower(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
