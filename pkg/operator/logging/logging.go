/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging configures the process-wide structured logger and carries
// it through context. Components never construct their own loggers; they
// pull the contextual one and name it.
package logging

import (
	"context"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/courierd/courierd/pkg/operator/options"
	"github.com/courierd/courierd/pkg/utils/env"
)

// NopLogger is used to throw away logs when we don't actually want to log in
// certain portions of the code since logging would be too noisy
var NopLogger = zapr.NewLogger(zap.NewNop())

const (
	Unknown = "unknown"
	Commit  = "commit"
)

func DefaultZapConfig(ctx context.Context) zap.Config {
	logLevel := zap.NewAtomicLevelAt(zap.InfoLevel)
	if l := options.FromContext(ctx).LogLevel; l != "" {
		logLevel = lo.Must(zap.ParseAtomicLevel(l))
	}
	return zap.Config{
		Level:             logLevel,
		Development:       false,
		DisableCaller:     options.FromContext(ctx).LogLevel != "debug",
		DisableStacktrace: true,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: lo.Ternary(options.FromContext(ctx).LogEncoding != "", options.FromContext(ctx).LogEncoding, "json"),
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			LevelKey:       "level",
			TimeKey:        "time",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      strings.Split(options.FromContext(ctx).LogOutputPaths, ","),
		ErrorOutputPaths: strings.Split(options.FromContext(ctx).LogErrorOutputPaths, ","),
	}
}

// NewLogger returns a configured logr.Logger named for the component.
func NewLogger(ctx context.Context, component string) logr.Logger {
	return zapr.NewLogger(WithCommit(lo.Must(DefaultZapConfig(ctx).Build())).Named(component))
}

func WithCommit(logger *zap.Logger) *zap.Logger {
	revision := env.GetRevision()
	if revision == Unknown {
		logger.Info("Unable to read vcs.revision from binary")
		return logger
	}
	// Enrich logs with the components git revision.
	return logger.With(zap.String(Commit, revision))
}

// WithLogger returns a copy of the context with the logger injected.
func WithLogger(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// FromContext returns the contextual logger, falling back to NopLogger when
// none was injected.
func FromContext(ctx context.Context) logr.Logger {
	if logger, err := logr.FromContext(ctx); err == nil {
		return logger
	}
	return NopLogger
}
