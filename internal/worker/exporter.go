package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONLExporter appends records to a JSON-lines file. Safe for
// concurrent use.
type JSONLExporter struct {
	mu   sync.Mutex
	file *os.File
}

func NewJSONLExporter(path string) (*JSONLExporter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open export log %q: %w", path, err)
	}
	return &JSONLExporter{file: f}, nil
}

func (e *JSONLExporter) Export(record ExportRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal export record: %w", err)
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.file.Write(line); err != nil {
		return fmt.Errorf("write export record: %w", err)
	}
	return nil
}

func (e *JSONLExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Close()
}
