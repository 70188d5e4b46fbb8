package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Env holds settings read from the process environment.
type Env struct {
	AppEnv          string
	LogLevel        slog.Level
	MQTTBroker      string // empty disables the MQTT sink
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string
	ConfigFile      string
}

func LoadFromEnv() (Env, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Env{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := ParseLogLevel(logLevelStr)
	if err != nil {
		return Env{}, err
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Env{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Env{}, fmt.Errorf("MQTT_PORT out of range, got %d", mqttPort)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "scale-scanner"
	}

	prefix := strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX"))
	if prefix == "" {
		prefix = "scales"
	}

	return Env{
		AppEnv:          appEnv,
		LogLevel:        level,
		MQTTBroker:      strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTPort:        mqttPort,
		MQTTClientID:    mqttClientID,
		MQTTTopicPrefix: prefix,
		ConfigFile:      strings.TrimSpace(os.Getenv("SCALE_CONFIG")),
	}, nil
}

func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
