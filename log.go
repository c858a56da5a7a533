package market

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a console logger tagged with the service name, for use
// by daemons and tools embedding the market.
func NewLogger(service string) *logrus.Entry {
	lg := logrus.New()
	lg.SetOutput(os.Stderr)
	lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return lg.WithField("service", service)
}

// silentLogger is the library default: the market never writes to a
// caller's terminal unless handed a logger.
func silentLogger() *logrus.Entry {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return logrus.NewEntry(lg)
}
