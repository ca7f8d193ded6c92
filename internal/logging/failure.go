package logging

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// FailureLogger logs failed request attempts at most perSecond times per second.
// A target that refuses every connection would otherwise produce one line per attempt.
type FailureLogger struct {
	entry      *log.Entry
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

func NewFailureLogger(entry *log.Entry, perSecond int) *FailureLogger {
	if entry == nil {
		entry = WithComponent("dispatcher")
	}
	if perSecond <= 0 {
		perSecond = 5
	}
	return &FailureLogger{
		entry:   entry,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// LogFailure records err unless the limiter is exhausted.
func (l *FailureLogger) LogFailure(err error) {
	if l == nil || err == nil {
		return
	}
	if !l.limiter.Allow() {
		l.suppressed.Add(1)
		return
	}
	entry := l.entry
	if n := l.suppressed.Swap(0); n > 0 {
		entry = entry.WithField("suppressed", n)
	}
	entry.WithError(err).Warn("request failed")
}

// Suppressed returns how many failures were dropped since the last logged line.
func (l *FailureLogger) Suppressed() int64 {
	return l.suppressed.Load()
}
