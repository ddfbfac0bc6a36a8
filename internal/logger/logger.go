package logger

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry so call sites can chain fields without caring
// about formatter or level setup.
type Logger struct {
	*logrus.Entry
}

// New builds a logger configured from the environment: pretty text locally,
// JSON everywhere else, level from LOG_LEVEL.
func New(service string) *Logger {
	base := logrus.New()

	env := os.Getenv("ENVIRONMENT")
	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	base.SetOutput(os.Stdout)

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "warn":
		base.SetLevel(logrus.WarnLevel)
	case "error":
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}

	entry := logrus.NewEntry(base)
	if service != "" {
		entry = entry.WithField("service", service)
	}
	return &Logger{Entry: entry}
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{Entry: logrus.NewEntry(base)}
}

// WithRequest attaches request metadata, generating a request id when the
// caller did not send one.
func (l *Logger) WithRequest(r *http.Request) *logrus.Entry {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}

	return l.WithFields(logrus.Fields{
		"req_id":    reqID,
		"method":    r.Method,
		"path":      r.URL.Path,
		"remote_ip": r.RemoteAddr,
	})
}
