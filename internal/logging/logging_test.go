package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBrokerCoreWriteDoesNotErrorWithoutBroker(t *testing.T) {
	core := &brokerCore{module: "rss", source: "collector", broker: nil, level: zapcore.DebugLevel}
	err := core.Write(zapcore.Entry{Level: zapcore.InfoLevel, Message: "hello"}, []zapcore.Field{zap.String("k", "v")})
	assert.NoError(t, err)
}

func TestBrokerCoreEnabledRespectsLevel(t *testing.T) {
	core := &brokerCore{level: zapcore.WarnLevel}
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
}

func TestFieldsToMapFlattensZapFields(t *testing.T) {
	m := fieldsToMap([]zapcore.Field{zap.String("module", "rss"), zap.Int("count", 3)})
	assert.Equal(t, "rss", m["module"])
	assert.Equal(t, int64(3), m["count"])
}
