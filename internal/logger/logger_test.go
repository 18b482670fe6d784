package logger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewLogger_WritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "app.log")

	log, err := NewLogger(Config{Level: "debug", LogFile: logFile})
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()

	assert.FileExists(t, logFile)
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := NewLogger(Config{Level: "verbose"})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zap.DebugLevel))
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
}

func TestComponent_NilBase(t *testing.T) {
	assert.NotNil(t, Component(nil, "x"))
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gl := NewGormLogger(zap.New(core), false)

	sqlFn := func() (string, int64) { return "SELECT 1", 1 }

	// 记录不存在不记录
	gl.Trace(context.Background(), time.Now(), sqlFn, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	gl.Trace(context.Background(), time.Now(), sqlFn, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "sql error", logs.All()[0].Message)

	// 非 debug 模式下普通查询不记录
	gl.Trace(context.Background(), time.Now(), sqlFn, nil)
	assert.Equal(t, 1, logs.Len())

	gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sqlFn, errors.New("boom"))
	assert.Equal(t, 1, logs.Len())
}
