package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"scale-scanner.klederson.com/internal/config"
)

// New builds the process logger. Dev gets colored text, prod gets JSON.
// Logs go to w, never to the event stream.
func New(w io.Writer, env config.Env, appName string) *slog.Logger {
	if env.AppEnv != "prod" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      env.LogLevel,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: env.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", config.AppVersion,
		"env", env.AppEnv,
	)
}
