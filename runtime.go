package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/config"
	"scale-scanner.klederson.com/internal/events"
	"scale-scanner.klederson.com/internal/keys"
	"scale-scanner.klederson.com/internal/logging"
)

// runtime is what every subcommand shares: settings, logger, keys, sinks.
type runtime struct {
	env    config.Env
	file   config.File
	logger *slog.Logger
	keys   *keys.Keyring
	match  bluetooth.MatchPolicy
	sink   events.Sink
	mqtt   *events.MQTT
}

// setup loads configuration and validates key material before any radio
// work starts. Problems are reported as an error event and returned.
func setup(ctx context.Context) (*runtime, error) {
	stdout := events.NewJSONLines(os.Stdout)

	env, err := config.LoadFromEnv()
	if err != nil {
		return nil, fail(stdout, "config", err)
	}
	if flagLogLevel != "" {
		if env.LogLevel, err = config.ParseLogLevel(flagLogLevel); err != nil {
			return nil, fail(stdout, "config", err)
		}
	}
	if flagConfig != "" {
		env.ConfigFile = flagConfig
	}
	if flagMQTT != "" {
		env.MQTTBroker = flagMQTT
	}

	var logOut io.Writer = os.Stderr
	if flagTUI {
		logOut = io.Discard
	}
	logger := logging.New(logOut, env, "scale-scanner")
	slog.SetDefault(logger)

	file, err := config.LoadFile(env.ConfigFile)
	if err != nil {
		return nil, fail(stdout, "config", err)
	}

	matchName := flagMatch
	if matchName == "" {
		matchName = file.Match
	}
	match, err := bluetooth.ParseMatchPolicy(matchName)
	if err != nil {
		return nil, fail(stdout, "config", err)
	}

	ring, err := buildKeyring(file)
	if err != nil {
		return nil, fail(stdout, events.KindInvalidKey, err)
	}

	rt := &runtime{env: env, file: file, logger: logger, keys: ring, match: match}
	if !flagTUI {
		rt.sink = stdout
	}

	if env.MQTTBroker != "" {
		rt.mqtt = events.NewMQTT(events.MQTTConfig{
			Broker:      env.MQTTBroker,
			Port:        env.MQTTPort,
			ClientID:    env.MQTTClientID,
			TopicPrefix: env.MQTTTopicPrefix,
		}, logger)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := rt.mqtt.Connect(connectCtx); err != nil {
			rt.mqtt.Close()
			return nil, fail(stdout, "mqtt", err)
		}
	}

	logger.Info("starting",
		"version", config.AppVersion,
		"env", env.AppEnv,
		"log_level", env.LogLevel.String(),
		"keys", ring.Len(),
		"match", match.String(),
		"mqtt", env.MQTTBroker != "",
	)
	return rt, nil
}

// sinkWith combines the runtime sinks with extra, such as the live view.
func (rt *runtime) sinkWith(extra events.Sink) events.Sink {
	var sinks events.Multi
	for _, s := range []events.Sink{rt.sink, extra} {
		if s != nil {
			sinks = append(sinks, s)
		}
	}
	if rt.mqtt != nil {
		sinks = append(sinks, brokerEvents(rt.mqtt))
	}
	switch len(sinks) {
	case 0:
		return events.Discard
	case 1:
		return sinks[0]
	}
	return sinks
}

// brokerEvents keeps per-frame debug output off the broker.
func brokerEvents(s events.Sink) events.Sink {
	return events.Filter(s, events.TypeDiscovered, events.TypeMeasurement, events.TypeStatus, events.TypeError)
}

func (rt *runtime) close() {
	if rt.mqtt != nil {
		rt.mqtt.Close()
	}
}

// names resolves display names from the devices file.
func (rt *runtime) names(id string) string {
	return rt.file.Name(id)
}

func buildKeyring(file config.File) (*keys.Keyring, error) {
	ring := keys.NewKeyring()
	var errs []error
	for _, d := range file.Devices {
		if err := ring.Add(d.ID, d.Key); err != nil {
			errs = append(errs, err)
		}
	}
	if flagKey != "" {
		if err := ring.Add(flagDeviceMAC, flagKey); err != nil {
			errs = append(errs, fmt.Errorf("--key: %w", err))
		}
	}
	return ring, errors.Join(errs...)
}

func fail(sink events.Sink, kind string, err error) error {
	_ = sink.Emit(events.Error(kind, err.Error()))
	return err
}

// target resolves the device to listen to from the flag or the devices file.
func (rt *runtime) target() string {
	if flagDeviceMAC != "" {
		return strings.TrimSpace(flagDeviceMAC)
	}
	for _, d := range rt.file.Devices {
		if d.ID != "" {
			return d.ID
		}
	}
	return ""
}
