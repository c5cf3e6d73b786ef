// Package log wires graph diagnostics to logrus and rate-limits the ones
// that originate on the block path.
package log

import (
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var debug bool

// Logger is a global interface for graph loggers.
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
}

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("GRAPH_DEBUG"))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

type silent struct{}

func (silent) Debugf(string, ...interface{}) {}

func (silent) Infof(string, ...interface{}) {}

func (silent) Warnf(string, ...interface{}) {}

// Silent returns a logger that discards everything.
func Silent() Logger {
	return silent{}
}

// Limiter rate-limits a single diagnostic key without locking, so it is
// safe to consult from the block path. Suppressed repeats are counted and
// reported with the next allowed message.
type Limiter struct {
	interval time.Duration
	last     atomic.Int64
	dropped  atomic.Uint64
}

// NewLimiter returns a limiter allowing one message per interval.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Allow reports whether a message may be logged now. When it may, Allow
// also returns the number of messages suppressed since the previous one.
func (l *Limiter) Allow(now time.Time) (uint64, bool) {
	n := now.UnixNano()
	last := l.last.Load()
	if last != 0 && n-last < int64(l.interval) {
		l.dropped.Add(1)
		return 0, false
	}
	if !l.last.CompareAndSwap(last, n) {
		l.dropped.Add(1)
		return 0, false
	}
	return l.dropped.Swap(0), true
}
