// Package nodelog constructs the shared structured logger used across the
// ledger, HTTP, and bootstrap layers. Both node roles inject one logger
// instance rather than reaching for package-level log state.
package nodelog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger whose level is controlled by BALLOTCHAIN_LOG_LEVEL
// (falling back to info), with JSON-free text output suited to a console.
func New() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(levelFromEnv())
	return l
}

func levelFromEnv() logrus.Level {
	raw := os.Getenv("BALLOTCHAIN_LOG_LEVEL")
	if raw == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
