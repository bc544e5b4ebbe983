package audio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Dumper appends raw PCM to a timestamped file for offline inspection.
// Elements create one lazily when a DUMP_* environment variable is set.
type Dumper struct {
	mu   sync.Mutex
	file *os.File
}

// NewDumper creates a dump file named after the source, sample rate and
// channel count, e.g. gemini_input_16000hz_1ch_20060102150405.pcm.
func NewDumper(name string, sampleRate, channels int) (*Dumper, error) {
	path := fmt.Sprintf("%s_%dhz_%dch_%s.pcm",
		name, sampleRate, channels, time.Now().Format("20060102150405"))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dump file %s: %w", path, err)
	}
	return &Dumper{file: f}, nil
}

// Write appends data to the dump file. Safe for concurrent use.
func (d *Dumper) Write(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	_, err := d.file.Write(data)
	return err
}

// Close closes the underlying file.
func (d *Dumper) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
