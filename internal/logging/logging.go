// Package logging wires dlib's context-scoped logger on top of logrus,
// grounded on pkg/client/logging/formatter.go and
// cmd/traffic/logger.go's makeBaseLogger. It realizes spec.md §6's
// Logging contract: info/debug/error levels, a quiet switch, and
// timestamped lines to stderr.
package logging

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/datawire/dlib/dlog"
)

// Formatter renders timestamped, single-line log entries, sorting any
// structured fields after the message for deterministic output.
type Formatter struct {
	timestampFormat string
}

// NewFormatter returns a Formatter using the given time layout.
func NewFormatter(timestampFormat string) *Formatter {
	return &Formatter{timestampFormat: timestampFormat}
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := &bytes.Buffer{}
	b.WriteString(entry.Time.Format(f.timestampFormat))
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, " %s=%+v", k, entry.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// WithLogger builds a logrus logger honoring quiet/verbose and attaches
// it to ctx as dlog's logger, returning the derived context. quiet wins
// over verbose: a quiet process logs only errors.
func WithLogger(ctx context.Context, quiet, verbose bool) context.Context {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(NewFormatter("2006-01-02T15:04:05.000Z07:00"))

	switch {
	case quiet:
		l.SetLevel(logrus.ErrorLevel)
	case verbose:
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	logger := dlog.WrapLogrus(l)
	dlog.SetFallbackLogger(logger)
	return dlog.WithLogger(ctx, logger)
}
