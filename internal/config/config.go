package config

import (
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=comedor port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	Storage     string // postgres | memory
	JWTSecret   string
	CORSOrigins string

	Location          *time.Location
	DefaultMenuType   string
	FallbackUnitPrice decimal.Decimal

	ReceiptStorage string // local | oss
	ReceiptPath    string // receipts folder for the local backend
	ReceiptBaseURL string

	OSSEndpoint        string
	OSSAccessKeyID     string
	OSSAccessKeySecret string
	OSSBucket          string
	OSSPublicBaseURL   string

	KafkaBrokers []string
	KafkaTopic   string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// Load reads an optional .env file, then the environment. Missing secrets are fatal.
func Load() *Config {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("[FATAL] no se pudo leer .env: %v", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := fromViper(v)

	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET no está definido; es obligatorio.")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET debe tener al menos 32 caracteres.")
	}
	if cfg.Storage == "postgres" && cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN usa el valor por defecto; define tu propia conexión a Postgres en producción.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS usa el valor por defecto; define tu dominio en producción.")
	}
	if cfg.Storage == "memory" {
		log.Println("[WARN] STORAGE=memory: los datos se pierden al reiniciar.")
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_DSN", defaultDSN)
	v.SetDefault("STORAGE", "postgres")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("TIMEZONE", "America/Guayaquil")
	v.SetDefault("DEFAULT_MENU_TYPE", "Almuerzo")
	v.SetDefault("FALLBACK_UNIT_PRICE", "5")
	v.SetDefault("RECEIPT_STORAGE", "local")
	v.SetDefault("RECEIPT_PATH", "./receipts")
	v.SetDefault("RECEIPT_BASE_URL", "/files")
	v.SetDefault("OSS_ENDPOINT", "")
	v.SetDefault("OSS_ACCESS_KEY_ID", "")
	v.SetDefault("OSS_ACCESS_KEY_SECRET", "")
	v.SetDefault("OSS_BUCKET", "")
	v.SetDefault("OSS_PUBLIC_BASE_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "comedor.movements")
	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "")
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		HTTPPort:    v.GetString("HTTP_PORT"),
		DatabaseDSN: v.GetString("DATABASE_DSN"),
		Storage:     strings.ToLower(v.GetString("STORAGE")),
		JWTSecret:   v.GetString("JWT_SECRET"),
		CORSOrigins: v.GetString("CORS_ALLOWED_ORIGINS"),

		DefaultMenuType: v.GetString("DEFAULT_MENU_TYPE"),

		ReceiptStorage: strings.ToLower(v.GetString("RECEIPT_STORAGE")),
		ReceiptPath:    v.GetString("RECEIPT_PATH"),
		ReceiptBaseURL: strings.TrimRight(v.GetString("RECEIPT_BASE_URL"), "/"),

		OSSEndpoint:        v.GetString("OSS_ENDPOINT"),
		OSSAccessKeyID:     v.GetString("OSS_ACCESS_KEY_ID"),
		OSSAccessKeySecret: v.GetString("OSS_ACCESS_KEY_SECRET"),
		OSSBucket:          v.GetString("OSS_BUCKET"),
		OSSPublicBaseURL:   strings.TrimRight(v.GetString("OSS_PUBLIC_BASE_URL"), "/"),

		KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),

		BootstrapAdminEmail:    v.GetString("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
	}

	loc, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		log.Printf("[WARN] TIMEZONE %q inválido, se usa UTC: %v", v.GetString("TIMEZONE"), err)
		loc = time.UTC
	}
	cfg.Location = loc

	price, err := decimal.NewFromString(v.GetString("FALLBACK_UNIT_PRICE"))
	if err != nil || price.IsNegative() {
		log.Printf("[WARN] FALLBACK_UNIT_PRICE %q inválido, se usa 5", v.GetString("FALLBACK_UNIT_PRICE"))
		price = decimal.NewFromInt(5)
	}
	cfg.FallbackUnitPrice = price

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
