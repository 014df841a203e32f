package replay

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

const maxLineBytes = 4 << 20

// EncodeJSONL writes one entry per line.
func EncodeJSONL(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, e := range entries {
		if e.Command.Payload == nil {
			e.Command.Payload = json.RawMessage("{}")
		}
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode entry %d: %w", i, err)
		}
	}
	return nil
}

// DecodeJSONL reads entries written by EncodeJSONL. Blank lines are skipped.
func DecodeJSONL(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var entries []Entry
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return entries, nil
}

type yamlEntry struct {
	Tick      uint64      `yaml:"tick"`
	SessionID string      `yaml:"session_id"`
	Command   yamlCommand `yaml:"command"`
}

type yamlCommand struct {
	Type         string `yaml:"type"`
	OpensSession bool   `yaml:"opens_session,omitempty"`
	Participants []Ref  `yaml:"participants,omitempty"`
	Payload      any    `yaml:"payload,omitempty"`
}

// EncodeYAML writes entries as a YAML sequence for human review.
func EncodeYAML(w io.Writer, entries []Entry) error {
	docs := make([]yamlEntry, 0, len(entries))
	for i, e := range entries {
		var payload any
		if len(e.Command.Payload) > 0 {
			if err := json.Unmarshal(e.Command.Payload, &payload); err != nil {
				return fmt.Errorf("entry %d payload: %w", i, err)
			}
		}
		docs = append(docs, yamlEntry{
			Tick:      e.Tick,
			SessionID: e.SessionID,
			Command: yamlCommand{
				Type:         e.Command.Type,
				OpensSession: e.Command.OpensSession,
				Participants: e.Command.Participants,
				Payload:      payload,
			},
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// DecodeYAML reads entries written by EncodeYAML.
func DecodeYAML(r io.Reader) ([]Entry, error) {
	var docs []yamlEntry
	if err := yaml.NewDecoder(r).Decode(&docs); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	entries := make([]Entry, 0, len(docs))
	for i, doc := range docs {
		payload := json.RawMessage("{}")
		if doc.Command.Payload != nil {
			raw, err := json.Marshal(doc.Command.Payload)
			if err != nil {
				return nil, fmt.Errorf("entry %d payload: %w", i, err)
			}
			payload = raw
		}
		e := Entry{
			Tick:      doc.Tick,
			SessionID: doc.SessionID,
			Command: Command{
				Type:         doc.Command.Type,
				OpensSession: doc.Command.OpensSession,
				Participants: doc.Command.Participants,
				Payload:      payload,
			},
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Digest returns a SHA-256 hash chained over the JSONL encoding of every
// entry, so equal digests mean equal logs in equal order.
func Digest(entries []Entry) (string, error) {
	prev := ""
	var buf bytes.Buffer
	for i, e := range entries {
		buf.Reset()
		if err := EncodeJSONL(&buf, []Entry{e}); err != nil {
			return "", fmt.Errorf("digest entry %d: %w", i, err)
		}
		h := sha256.New()
		h.Write([]byte(prev))
		h.Write(buf.Bytes())
		prev = hex.EncodeToString(h.Sum(nil))
	}
	if prev == "" {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	return prev, nil
}
