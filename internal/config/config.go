package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config carries everything the service needs from its environment.
type Config struct {
	Addr              string
	DatabaseDSN       string
	RedisAddr         string
	JWTSecret         string
	JWTAudience       string
	ModelPath         string
	ModelMetadataPath string
	OnnxLibraryPath   string
}

// Load reads the environment, with an optional .env file for local runs.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:              getEnv("ADDR", ":8080"),
		DatabaseDSN:       getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=neuroscan port=5432 sslmode=disable"),
		RedisAddr:         getEnv("REDIS_ADDR", "redis:6379"),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:       os.Getenv("JWT_AUDIENCE"),
		ModelPath:         getEnv("MODEL_PATH", "trainedmodels/brain_classifier.onnx"),
		ModelMetadataPath: getEnv("MODEL_METADATA_PATH", "trainedmodels/brain_classifier.json"),
		OnnxLibraryPath:   getEnv("ONNXRUNTIME_LIB_PATH", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
