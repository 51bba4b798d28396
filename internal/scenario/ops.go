// Package scenario replays a file of contract operations against a host.
// Operations are applied in batches; after every batch the runner records
// the next operation index and the label table so an interrupted run over a
// durable store resumes where it stopped.
package scenario

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

type OpKind string

const (
	OpInstantiate OpKind = "instantiate"
	OpExecute     OpKind = "execute"
	OpQuery       OpKind = "query"
)

// Op is one line of a scenario file. Strings inside Msg and Expect may
// reference bound addresses as "@label" and code ids as "#name".
type Op struct {
	Kind     OpKind          `json:"kind"`
	Sender   string          `json:"sender,omitempty"`
	Contract string          `json:"contract,omitempty"`
	Code     string          `json:"code,omitempty"`
	Label    string          `json:"label,omitempty"`
	Msg      json.RawMessage `json:"msg,omitempty"`
	// Save binds labels to address fields of the JSON result.
	Save        map[string]string `json:"save,omitempty"`
	ExpectError string            `json:"expect_error,omitempty"`
	Expect      json.RawMessage   `json:"expect,omitempty"`
}

func (o Op) validate() error {
	switch o.Kind {
	case OpInstantiate:
		if o.Code == "" || o.Label == "" {
			return fmt.Errorf("instantiate needs code and label")
		}
		if o.Sender == "" {
			return fmt.Errorf("instantiate needs a sender")
		}
	case OpExecute:
		if o.Sender == "" || o.Contract == "" {
			return fmt.Errorf("execute needs sender and contract")
		}
	case OpQuery:
		if o.Contract == "" {
			return fmt.Errorf("query needs a contract")
		}
		if o.ExpectError != "" && o.Expect != nil {
			return fmt.Errorf("query cannot expect both a result and an error")
		}
	default:
		return fmt.Errorf("unknown op kind %q", o.Kind)
	}
	if len(o.Msg) == 0 {
		return fmt.Errorf("%s needs a msg", o.Kind)
	}
	return nil
}

// ReadOps parses a JSONL scenario file. Blank lines and lines starting with
// '#' are skipped.
func ReadOps(path string) ([]Op, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()

	var ops []Op
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		var op Op
		if err := dec.Decode(&op); err != nil {
			return nil, fmt.Errorf("scenario line %d: %w", line, err)
		}
		if err := op.validate(); err != nil {
			return nil, fmt.Errorf("scenario line %d: %w", line, err)
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ops, nil
}
