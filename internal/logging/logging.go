package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Params struct {
	Production bool
	// When set, logs are also written to this file and rotated.
	FilePath string

	MaxSizeMb  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the process logger: zap's production or development preset on
// stderr, teed into a lumberjack rolling file when FilePath is set.
func New(params Params) (*zap.Logger, error) {
	var base *zap.Logger
	var err error
	if params.Production {
		base, err = zap.NewProduction()
	} else {
		base, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	if params.FilePath == "" {
		return base, nil
	}

	lj := &lumberjack.Logger{
		Filename:   params.FilePath,
		MaxSize:    orDefault(params.MaxSizeMb, 10),
		MaxBackups: orDefault(params.MaxBackups, 3),
		MaxAge:     orDefault(params.MaxAgeDays, 7),
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	level := zapcore.InfoLevel
	if !params.Production {
		level = zapcore.DebugLevel
	}
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(lj), level)

	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
