package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/garden/internal/model"
)

// maxLineSize bounds one JSONL record.
const maxLineSize = 1 << 20

// FileSource reads a snapshot from a local file. The format is chosen by
// extension: .json, .jsonl or .yaml/.yml.
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource for path, rejecting unknown extensions.
func NewFileSource(path string) (*FileSource, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".jsonl", ".yaml", ".yml":
		return &FileSource{Path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q (want .json, .jsonl, .yaml)", ext)
	}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Fetch reads and decodes the whole file.
func (s *FileSource) Fetch(ctx context.Context) ([]model.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var contacts []model.Contact
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".jsonl":
		contacts, err = DecodeJSONL(bytes.NewReader(data))
	case ".yaml", ".yml":
		contacts, err = DecodeYAML(data)
	default:
		contacts, err = DecodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return contacts, nil
}

// DecodeJSONL decodes one contact per line. Blank lines are skipped.
func DecodeJSONL(r io.Reader) ([]model.Contact, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []model.Contact
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var w wireContact
		if err := json.Unmarshal(text, &w); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, w.contact(false))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning jsonl: %w", err)
	}
	if out == nil {
		out = []model.Contact{}
	}
	return out, nil
}

// DecodeYAML accepts either a sequence of contacts or a mapping with a
// "contacts" key.
func DecodeYAML(data []byte) ([]model.Contact, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	if len(root.Content) == 0 {
		return []model.Contact{}, nil
	}
	doc := root.Content[0]

	var wc []wireContact
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&wc); err != nil {
			return nil, fmt.Errorf("decoding yaml contacts: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Contacts *[]wireContact `yaml:"contacts"`
		}
		if err := doc.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decoding yaml contacts: %w", err)
		}
		if wrapped.Contacts == nil {
			return nil, ErrNoContacts
		}
		wc = *wrapped.Contacts
	default:
		return nil, fmt.Errorf("yaml snapshot must be a list or a mapping, got kind %d", doc.Kind)
	}
	return convert(wc, false), nil
}
