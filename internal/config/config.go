package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	DefaultModelName = "yolov8s"
	DefaultMinConf   = 0.1
	DefaultMinIoU    = 0.5
)

type Config struct {
	Port int

	StaticDir    string
	UploadDir    string
	DetectionDir string

	WeightsDir string
	WeightsURL string
	ModelName  string
	MinConf    float64
	MinIoU     float64

	NutritionDB string
	OnnxLibPath string

	LogDirectory string
	LogLevel     string

	MaxUploadMB     int
	CORSOrigins     []string
	ReadTimeoutSec  int
	WriteTimeoutSec int
}

func Load() *Config {
	return &Config{
		Port:            getEnvAsInt("PORT", 8080),
		StaticDir:       getEnv("STATIC_DIR", "./static"),
		UploadDir:       getEnv("UPLOAD_DIR", "./static/assets/uploads/"),
		DetectionDir:    getEnv("DETECTION_DIR", "./static/assets/detections/"),
		WeightsDir:      getEnv("WEIGHTS_DIR", defaultWeightsDir()),
		WeightsURL:      getEnv("WEIGHTS_URL", "https://github.com/Brownie44l1/food-api/releases/download/weights"),
		ModelName:       getEnv("MODEL_NAME", DefaultModelName),
		MinConf:         getEnvAsFloat("MIN_CONF", DefaultMinConf),
		MinIoU:          getEnvAsFloat("MIN_IOU", DefaultMinIoU),
		NutritionDB:     getEnv("NUTRITION_DB", filepath.Join(".", "data", "db.json")),
		OnnxLibPath:     getEnv("ONNXRUNTIME_LIB", defaultOnnxLibPath()),
		LogDirectory:    getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		MaxUploadMB:     getEnvAsInt("MAX_UPLOAD_MB", 50),
		CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"*"}),
		ReadTimeoutSec:  getEnvAsInt("READ_TIMEOUT_SEC", 30),
		WriteTimeoutSec: getEnvAsInt("WRITE_TIMEOUT_SEC", 120),
	}
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Hosts with an ephemeral filesystem (Heroku sets DYNO) only get /tmp as scratch space.
func defaultWeightsDir() string {
	if os.Getenv("DYNO") != "" {
		return "/tmp/weights"
	}
	return filepath.Join(".", "weights")
}

func defaultOnnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.dylib"
		}
		return "./third_party/onnxruntime.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "./third_party/onnxruntime_arm64.so"
	}
	return "./third_party/onnxruntime.so"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
