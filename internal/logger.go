package internal

import (
	"fmt"
	"io"
	"strings"

	"github.com/moby/term"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a logger writing to w at the given level, one of debug, info, warn or
// error. Terminals get the colored console encoding; everything else gets JSON.
//
// Returns an error if the level is unknown.
func NewLogger(w io.Writer, level string) (*zap.Logger, error) {
	zapLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	if _, isTerminal := term.GetFdInfo(w); isTerminal {
		config := zap.NewDevelopmentEncoderConfig()
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	return zap.New(
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zap.NewAtomicLevelAt(zapLevel)),
	), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return 0, fmt.Errorf("unknown log level %q\nUse one of debug, info, warn or error", level)
}
