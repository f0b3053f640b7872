// Package banklog configures the logrus logger shared by the server and
// client binaries: a plain-text formatter with the spec's literal
// "YYYY-MM-DD HH:MM:SS" timestamp, grounded in the same banking-domain
// logging setup AartiJivrajani-PAXOS-Banking uses for its server and
// client mains.
package banklog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger configured for console output: full timestamps in
// the spec's literal format, no color codes (so output is stable when
// redirected to a file), written to stderr.
func New() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	return log
}

// Configure applies a string level ("debug", "info", "warn", "panic") to
// log, defaulting to Info on an unrecognized value — mirroring
// AartiJivrajani-PAXOS-Banking's configureLogger switch.
func Configure(log *logrus.Logger, level string) {
	switch level {
	case "panic":
		log.SetLevel(logrus.PanicLevel)
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		log.SetLevel(logrus.WarnLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}
