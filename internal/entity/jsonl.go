package entity

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxRecordSize bounds one JSONL line; the global context record is large.
const maxRecordSize = 64 << 20

// LineError reports the 1-based line of a record that failed to decode.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// EncodeJSONL writes one JSON record per entity, newline terminated.
func EncodeJSONL(entities []*Entity) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, e := range entities {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.QualifiedName, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeJSONL reads records written by EncodeJSONL. Blank lines are skipped.
// Every record is validated; failures come back as *LineError.
func DecodeJSONL(r io.Reader) ([]*Entity, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	var entities []*Entity
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entity
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		if err := e.Validate(); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		entities = append(entities, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, &LineError{Line: line + 1, Err: err}
	}
	return entities, nil
}
