package common

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GetLogger builds the process-wide sugared logger. The console encoder is
// the default for one-shot calc runs; prod switches to JSON lines for the
// API server. Estimators attach their chain as a field rather than getting
// named loggers.
func GetLogger(debug, prod bool) *zap.SugaredLogger {
	var logger *zap.Logger
	zapLevel := zap.NewAtomicLevel()
	if debug {
		zapLevel.SetLevel(zap.DebugLevel)
	}
	if prod {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stdout),
			zapLevel,
		))
	} else {
		logger = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stdout),
			zapLevel,
		))
	}
	return logger.Sugar()
}
