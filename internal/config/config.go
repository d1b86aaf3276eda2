// Package config reads runtime configuration from the environment, with
// defaults matching the reference deployment. An optional .env file is
// loaded first so local setups don't need to export anything.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	// MQTT connection.
	MQTTHost      string
	MQTTPort      int
	MQTTUsername  string
	MQTTPassword  string
	MQTTClientID  string
	MQTTKeepalive time.Duration
	MQTTUseTLS    bool

	// Topics.
	TankDataTopic    string
	AdjustmentsTopic string

	// Monitoring.
	MaxTanks     int
	TankHeight   float64
	HighLimitPct float64

	// Storage.
	DataDir          string
	HistoryFile      string
	MaxHistoryPoints int
	StorageDays      int

	// HTTP API.
	HTTPAddr string
}

// Load reads configuration from the environment. If envFile is non-empty
// and exists, it is loaded first; a missing file is not an error.
func Load(envFile string) Config {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				log.Printf("config: loading %s: %v", envFile, err)
			}
		} else {
			log.Printf("config: loaded environment from %s", envFile)
		}
	}

	return Config{
		MQTTHost:      envString("MQTT_HOST", "localhost"),
		MQTTPort:      envInt("MQTT_PORT", 1883),
		MQTTUsername:  envString("MQTT_USERNAME", ""),
		MQTTPassword:  envString("MQTT_PASSWORD", ""),
		MQTTClientID:  envString("MQTT_CLIENT_ID", ""),
		MQTTKeepalive: time.Duration(envInt("MQTT_KEEPALIVE", 60)) * time.Second,
		MQTTUseTLS:    envBool("MQTT_USE_TLS", false),

		TankDataTopic:    envString("MQTT_TOPIC_TANK_DATA", "tanks/data"),
		AdjustmentsTopic: envString("MQTT_TOPIC_ADJUSTMENTS", "tanks/adjustments"),

		MaxTanks:     envInt("MAX_TANKS", 11),
		TankHeight:   envFloat("DEFAULT_TANK_HEIGHT", 8.0),
		HighLimitPct: envFloat("HIGH_LEVEL_THRESHOLD_PERCENTAGE", 0.8),

		DataDir:          envString("DATA_DIR", "data"),
		HistoryFile:      envString("HISTORY_FILE", "tank_history.json"),
		MaxHistoryPoints: envInt("MAX_HISTORY_POINTS", 1000),
		StorageDays:      envInt("STORAGE_DAYS", 7),

		HTTPAddr: envString("HTTP_ADDR", ":5000"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s=%q is not a number, using %g", key, raw, fallback)
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: %s=%q is not a boolean, using %t", key, raw, fallback)
		return fallback
	}
	return v
}
