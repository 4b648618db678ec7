package bndither

import (
	"log/slog"

	"github.com/gpukit/bndither/internal/logx"
)

func setLogger(l *slog.Logger) { logx.SetLogger(l) }

func logger() *slog.Logger { return logx.Logger() }
