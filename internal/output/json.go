// internal/output/json.go
// Machine-readable ScanResult sidecar

package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aspnmy/recon_reporter/internal/models"
)

// record is the sidecar document
type record struct {
	*models.ScanResult
	OpenPorts []int                 `json:"open_ports"`
	Delivery  models.DeliveryStatus `json:"delivery"`
}

// JSONSink writes the result as an indented JSON document.
// Each Write replaces the file contents.
type JSONSink struct {
	path string
	mu   sync.Mutex
}

// NewJSONSink creates a sidecar sink, making parent directories as needed
func NewJSONSink(path string) (*JSONSink, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOutputFileNotWritable, err)
		}
	}
	return &JSONSink{path: path}, nil
}

// Name returns sink name
func (j *JSONSink) Name() string {
	return "json"
}

// Write serialises result to the sidecar file
func (j *JSONSink) Write(result *models.ScanResult, delivery models.DeliveryStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	//nolint:gosec // G302: result files are meant to be shared
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputFileNotWritable, err)
	}

	buffer := bufio.NewWriter(file)
	encoder := json.NewEncoder(buffer)
	encoder.SetIndent("", "  ")

	rec := record{ScanResult: result, OpenPorts: result.OpenPorts(), Delivery: delivery}
	if err := encoder.Encode(rec); err != nil {
		_ = file.Close()
		return err
	}
	if err := buffer.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Close is a no-op; files are closed after every write
func (j *JSONSink) Close() error {
	return nil
}
