package logging

import (
	"time"

	"go.uber.org/zap"
)

// VariantFields identifies one variant of a batch.
//
// Example:
//
//	log := logger.With(logging.VariantFields(i, total, seed, hash)...)
//	log.Warn("stage rolled back")
func VariantFields(index, total int, seed int64, hash string) []zap.Field {
	return []zap.Field{
		zap.Int("variant", index+1),
		zap.Int("variants", total),
		zap.Int64("seed", seed),
		zap.String("unique_hash", hash),
	}
}

// StageFields names a pipeline stage and the state it started from.
func StageFields(stage, fromState string) []zap.Field {
	return []zap.Field{
		zap.String("stage", stage),
		zap.String("from_state", fromState),
	}
}

// BatchFields describes a whole variant batch.
func BatchFields(batchID string, level, count int, duration time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("batch_id", batchID),
		zap.Int("level", level),
		zap.Int("count", count),
		zap.Duration("duration", duration),
	}
}

// MirrorFields describes one remote transform call.
func MirrorFields(requestID, provider string, level int) []zap.Field {
	return []zap.Field{
		zap.String("request_id", requestID),
		zap.String("provider", provider),
		zap.Int("level", level),
	}
}

// RequestFields describes a completed HTTP request.
func RequestFields(method, path string, status int, duration time.Duration, remoteAddr string) []zap.Field {
	return []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", duration),
		zap.String("remote_addr", remoteAddr),
	}
}
