// Package logging builds the logrus entries handed to SDK components.
// Components never log through a package-level logger; they receive an entry
// through their options and default to Discard.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Discard returns an entry that drops everything.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// New returns an entry writing to stderr at the given level ("debug", "info", ...).
// An unknown level falls back to info.
func New(level string, json bool) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return logrus.NewEntry(l)
}

// OrDiscard returns entry, or a discarding entry when it is nil.
func OrDiscard(entry *logrus.Entry) *logrus.Entry {
	if entry == nil {
		return Discard()
	}
	return entry
}
