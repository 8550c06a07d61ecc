package zap

import (
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const prefix = "[DKPII]"

// prependEncoder decorates the console encoder with a coloured service prefix,
// the level and a timestamp.
type prependEncoder struct {
	zapcore.Encoder
	cfg  zapcore.EncoderConfig
	pool buffer.Pool
}

func (e *prependEncoder) Clone() zapcore.Encoder {
	return &prependEncoder{
		Encoder: e.Encoder.Clone(),
		pool:    buffer.NewPool(),
		cfg:     e.cfg,
	}
}

func (e *prependEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := e.pool.Get()

	c := color.New(color.BgBlue)
	if entry.Level >= zapcore.WarnLevel {
		c = color.New(color.BgRed)
	} else if entry.Level == zapcore.DebugLevel {
		c = color.New(color.BgMagenta)
	}

	buf.AppendString(c.Sprint(prefix))
	buf.AppendString(" ")
	buf.AppendString(levelName(entry.Level))
	buf.AppendString(" | ")
	buf.AppendString(entry.Time.Format(time.RFC3339))
	buf.AppendString(" | ")

	consolebuf, err := e.Encoder.EncodeEntry(entry, fields)
	if err != nil {
		return nil, err
	}
	defer consolebuf.Free()

	if _, err = buf.Write(consolebuf.Bytes()); err != nil {
		return nil, err
	}

	return buf, nil
}

func levelName(lvl zapcore.Level) string {
	switch lvl {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARN"
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.FatalLevel:
		return "FATAL"
	}

	return lvl.CapitalString()
}

// NewLogger returns a JSON logger at info level in production mode and a
// coloured debug console logger otherwise.
func NewLogger(mode string) *zap.Logger {
	if mode == "production" {
		cfg := zap.Config{
			Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
			Encoding:         "json",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
			EncoderConfig: zapcore.EncoderConfig{
				MessageKey:  "message",
				LevelKey:    "level",
				TimeKey:     "ts",
				EncodeLevel: zapcore.LowercaseLevelEncoder,
				EncodeTime:  zapcore.ISO8601TimeEncoder,
			},
		}

		return zap.Must(cfg.Build())
	}

	encCfg := zapcore.EncoderConfig{
		MessageKey: "message",
	}

	enc := &prependEncoder{
		Encoder: zapcore.NewConsoleEncoder(encCfg),
		pool:    buffer.NewPool(),
		cfg:     encCfg,
	}

	return zap.New(zapcore.NewCore(
		enc,
		zapcore.AddSync(colorable.NewColorableStdout()),
		zapcore.DebugLevel,
	))
}
