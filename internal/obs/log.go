package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
	})
	return logger
}

// SetLevel applies a textual level ("debug", "info", ...). Unknown values
// fall back to info with a warning.
func SetLevel(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "info"
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		Logger().Warnf("invalid log level %q, defaulting to info", name)
		level = logrus.InfoLevel
	}
	Logger().SetLevel(level)
}

// LogRequest emits one access log line with common HTTP fields.
func LogRequest(fields logrus.Fields) {
	entry := Logger().WithFields(fields)
	status, _ := fields["status"].(int)
	switch {
	case status >= 500:
		entry.Error("request_complete")
	case status >= 400:
		entry.Warn("request_complete")
	default:
		entry.Info("request_complete")
	}
}
