package sql

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSlowQueryThreshold is used when the connection does not configure
// a slow query threshold.
const DefaultSlowQueryThreshold = 100 * time.Millisecond

// QueryStats holds statement execution statistics of a connection.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of exec statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing statements.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of statements exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of statement errors.
	Errors atomic.Int64
	// CacheHits is the count of queries answered from the query cache.
	CacheHits atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
		CacheHits:     s.CacheHits.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
	s.CacheHits.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
	CacheHits     int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d cache_hits=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors, s.CacheHits,
	)
}

// SlowQueryHook is a function called when a slow statement is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// LogSlowQueries returns a hook logging slow statements at warning level.
func LogSlowQueries(l logrus.FieldLogger) SlowQueryHook {
	return func(_ context.Context, query string, args []any, duration time.Duration) {
		l.WithFields(logrus.Fields{
			"duration": duration,
			"sql":      query,
			"args":     args,
		}).Warn("slow query detected")
	}
}

func (c *Conn) slowThreshold() time.Duration {
	if c.cfg.SlowQueryThreshold > 0 {
		return c.cfg.SlowQueryThreshold
	}
	return DefaultSlowQueryThreshold
}

// record updates the statistics of the connection after a statement ran.
func (c *Conn) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		c.stats.TotalQueries.Add(1)
	} else {
		c.stats.TotalExecs.Add(1)
	}
	c.stats.TotalDuration.Add(int64(duration))

	if err != nil {
		c.stats.Errors.Add(1)
	}

	if duration > c.slowThreshold() {
		c.stats.SlowQueries.Add(1)
		hook := c.slowHook
		if hook == nil {
			hook = LogSlowQueries(c.log)
		}
		if !c.cfg.EnableParamLogging {
			args = nil
		}
		hook(ctx, query, args, duration)
	}
}
