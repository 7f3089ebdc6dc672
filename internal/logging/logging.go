package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds the service logger. Dev environments get colorized console
// output via tint; everything else logs JSON for ingestion.
func New(env, service string) *slog.Logger {
	var handler slog.Handler
	if env == "dev" {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.TimeOnly,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return slog.New(handler).With(slog.String("service", service))
}
