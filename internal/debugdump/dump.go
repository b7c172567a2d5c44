// Package debugdump writes raw cloud exchanges to timestamped JSON files
// for protocol debugging. Disabled unless explicitly enabled in config.
package debugdump

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fields stripped from dumps. Credentials and session identifiers never
// belong on disk.
var redactedKeys = map[string]struct{}{
	"token":    {},
	"password": {},
	"userId":   {},
	"deviceId": {},
}

// Writer persists one file per exchange into a dump directory.
type Writer struct {
	logger *zap.Logger
	dir    string

	mu  sync.Mutex
	seq int
}

// NewWriter creates the dump directory if needed.
func NewWriter(logger *zap.Logger, dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	return &Writer{logger: logger, dir: dir}, nil
}

// Record writes one exchange. Failures are logged, never propagated: a
// broken dump directory must not break polling.
func (w *Writer) Record(trace map[string]any) {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	endpoint, _ := trace["endpoint"].(string)
	name := fmt.Sprintf("%s_%04d_%s.json",
		time.Now().UTC().Format("20060102T150405"),
		seq,
		sanitize(endpoint))

	data, err := json.MarshalIndent(redact(trace), "", "  ")
	if err != nil {
		w.logger.Warn("marshal debug dump failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(filepath.Join(w.dir, name), data, 0o644); err != nil {
		w.logger.Warn("write debug dump failed", zap.Error(err))
	}
}

func sanitize(endpoint string) string {
	endpoint = strings.Trim(endpoint, "/")
	endpoint = strings.ReplaceAll(endpoint, "/", "_")
	if endpoint == "" {
		return "unknown"
	}
	return endpoint
}

// redact walks the trace and blanks sensitive values, including inside
// raw JSON payloads.
func redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if _, hit := redactedKeys[k]; hit {
				out[k] = "**redacted**"
				continue
			}
			out[k] = redact(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = redact(inner)
		}
		return out
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return string(val)
		}
		return redact(decoded)
	default:
		return v
	}
}
