package results

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	safeName   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	unsafeRune = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// nameHashLen is the number of hex digits of the username digest kept in a file name.
const nameHashLen = 16

// FileLog appends each record as a YAML document to <dir>/<username>_results.log.
type FileLog struct {
	dir string
	mu  sync.Mutex
}

// NewFileLog creates dir if needed and returns a FileLog writing beneath it.
//
// Precondition: dir must be non-empty.
// Postcondition: dir exists, or a non-nil error is returned.
func NewFileLog(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results dir %s: %w", dir, err)
	}
	return &FileLog{dir: dir}, nil
}

// Path returns the log file for username. Names made only of [A-Za-z0-9_-]
// are used as is. Any other name is reduced to those characters and suffixed
// with a digest of the raw name, so distinct usernames never share a file and
// none can escape the results directory.
func (f *FileLog) Path(username string) string {
	return filepath.Join(f.dir, fileStem(username)+"_results.log")
}

func fileStem(username string) string {
	if safeName.MatchString(username) {
		return username
	}
	sum := sha256.Sum256([]byte(username))
	// '.' never appears in a verbatim stem, so hashed stems cannot collide with one.
	return unsafeRune.ReplaceAllString(username, "_") + "." + hex.EncodeToString(sum[:])[:nameHashLen]
}

// Append writes rec to its user's log.
//
// Precondition: rec.Username must be non-empty.
// Postcondition: The record is appended as one YAML document, or a non-nil error is returned.
func (f *FileLog) Append(_ context.Context, rec Record) error {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding result for %s: %w", rec.Username, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding result for %s: %w", rec.Username, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.Path(rec.Username)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}

// Read decodes every record in username's log, oldest first.
func (f *FileLog) Read(username string) ([]Record, error) {
	f.mu.Lock()
	data, err := os.ReadFile(f.Path(username))
	f.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading results for %s: %w", username, err)
	}

	var out []Record
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding results for %s: %w", username, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
