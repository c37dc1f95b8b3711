// Package logging builds the zap loggers FeedEater uses, including the
// broker-tee core that mirrors structured log entries onto the log
// stream (spec.md §4.9).
package logging

import (
	"encoding/json"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jhacksman/feedeater/internal/broker"
	"github.com/jhacksman/feedeater/internal/normalize"
)

// New builds the base process logger: zap's production JSON encoder in
// non-development environments, a human-readable console encoder
// otherwise.
func New(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// WithBrokerTee returns a child logger that additionally publishes every
// entry (at its own level, best-effort) onto <root>.<module>.log,
// per spec.md §4.9 "Logs are best-effort (broker publish failure is
// swallowed)".
func WithBrokerTee(base *zap.Logger, b *broker.Broker, module, source string) *zap.Logger {
	tee := &brokerCore{module: module, source: source, broker: b, level: zapcore.DebugLevel}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, tee)
	}))
}

// brokerCore is a minimal zapcore.Core that forwards each log entry to
// the broker as a normalize.LogEntry. It never buffers and never
// returns write errors (publish failures are swallowed, spec.md §4.9).
type brokerCore struct {
	module string
	source string
	broker *broker.Broker
	level  zapcore.Level
	fields []zapcore.Field
}

func (c *brokerCore) Enabled(level zapcore.Level) bool { return level >= c.level }

func (c *brokerCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &brokerCore{module: c.module, source: c.source, broker: c.broker, level: c.level, fields: merged}
}

func (c *brokerCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *brokerCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	meta := fieldsToMap(append(append([]zapcore.Field{}, c.fields...), fields...))
	entry := normalize.LogEntry{
		Level:   ent.Level.String(),
		Module:  c.module,
		Source:  c.source,
		At:      ent.Time.UTC(),
		Message: ent.Message,
		Meta:    meta,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil // malformed log entries are dropped, never escalated
	}
	if c.broker != nil {
		c.broker.Publish(normalize.SubjectLog(c.module), payload)
	}
	return nil
}

func (c *brokerCore) Sync() error { return nil }

func fieldsToMap(fields []zapcore.Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}
