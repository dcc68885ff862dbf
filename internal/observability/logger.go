package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rl1809/lesson-booking/internal/config"
)

// NewLogger builds a JSON logger on stdout, or zap's development logger when format is "console".
func NewLogger(format string) (*zap.Logger, error) {
	if format == "console" {
		return zap.NewDevelopment(zap.Fields(zap.String("service.name", config.ServiceName)))
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", config.ServiceName)),
	), nil
}
