package system

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ReqLoggerKey is the gin context key of the request-scoped logger.
const ReqLoggerKey = "reqLogger"

// NewLogger builds the process logger: JSON in production, console when debug
// is set. Timestamps are RFC3339 UTC under "ts" and stacktraces are disabled
// for non-fatal levels. Output goes to stderr so it never mixes with command output.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return logger, nil
}

// NewCLILogger logs warnings and errors only unless verbose is set.
func NewCLILogger(verbose bool) (*zap.Logger, error) {
	logger, err := NewLogger(verbose)
	if err != nil {
		return nil, err
	}
	if verbose {
		return logger, nil
	}
	return logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel)), nil
}

// GetReqLogger returns the request-scoped logger stored in c, or fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// EnrichReqLoggerWithAuth annotates the request logger with the identity the
// auth middleware stored in the gin context (subject, username, scopes).
func EnrichReqLoggerWithAuth(c *gin.Context, reqLogger *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil || reqLogger == nil {
		return reqLogger
	}
	if v, ok := c.Get("subject"); ok {
		if subject, ok2 := v.(string); ok2 && subject != "" {
			reqLogger = reqLogger.With("subject", subject)
		}
	}
	if v, ok := c.Get("username"); ok {
		if username, ok2 := v.(string); ok2 && username != "" {
			reqLogger = reqLogger.With("username", username)
		}
	}
	if v, ok := c.Get("scopes"); ok {
		if scopes, ok2 := v.([]string); ok2 && len(scopes) > 0 {
			reqLogger = reqLogger.With("scopeCount", len(scopes))
			reqLogger.Debugw("Request token scopes", "scopes", scopes)
		}
	}
	return reqLogger
}
