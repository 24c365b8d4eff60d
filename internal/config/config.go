package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr     string
	MySQLDSN       string
	GeminiAPIKey   string
	GeminiBaseURL  string
	ImageModel     string
	TextModel      string
	EnhancePrompt  bool
	RequestTimeout time.Duration

	AuthJWTSecret string

	FreeQuotaDefault   int
	PurchaseCredits    int
	ThumbnailWidth     int
	ThumbnailHeight    int
	MaxUploadFiles     int
	MaxUploadFileBytes int64

	UploadDir    string
	GeneratedDir string

	AdminUsername string
	AdminPassword string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// S3Enabled reports whether uploaded and generated files should be archived
// to object storage instead of the local temp directories.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

	cfg := Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":3000"),
		GeminiBaseURL:      normalizeBaseURL(getEnv("GEMINI_BASE_URL", defaultGeminiBaseURL), defaultGeminiBaseURL),
		ImageModel:         getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image-preview"),
		TextModel:          getEnv("GEMINI_TEXT_MODEL", "gemini-2.0-flash"),
		EnhancePrompt:      getBool("ENHANCE_PROMPT", true),
		RequestTimeout:     time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		FreeQuotaDefault:   getInt("FREE_QUOTA_DEFAULT", 2),
		PurchaseCredits:    getInt("PURCHASE_CREDITS_PER_PACKAGE", 10),
		ThumbnailWidth:     getInt("THUMBNAIL_WIDTH", 1280),
		ThumbnailHeight:    getInt("THUMBNAIL_HEIGHT", 720),
		MaxUploadFiles:     getInt("MAX_UPLOAD_FILES", 5),
		MaxUploadFileBytes: int64(getInt("MAX_UPLOAD_FILE_MB", 10)) * 1024 * 1024,
		UploadDir:          getEnv("UPLOAD_DIR", filepath.Join("temp", "uploads")),
		GeneratedDir:       getEnv("GENERATED_DIR", filepath.Join("temp", "generated")),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3Region:           os.Getenv("S3_REGION"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:    os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:     getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:           getEnv("S3_PREFIX", "thumbnails"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.AuthJWTSecret = os.Getenv("AUTH_JWT_SECRET")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.AuthJWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}
	if cfg.S3Enabled() {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.ThumbnailWidth <= 0 || cfg.ThumbnailHeight <= 0 {
		return Config{}, fmt.Errorf("invalid thumbnail dimensions %dx%d", cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	}
	if cfg.FreeQuotaDefault < 0 {
		return Config{}, fmt.Errorf("FREE_QUOTA_DEFAULT cannot be negative")
	}

	return cfg, nil
}

// normalizeBaseURL ensures the Gemini base URL always carries a scheme and host.
// Some docs reference the bare hostname, which breaks url.ResolveReference.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off the process environment is fine.
	return nil
}
