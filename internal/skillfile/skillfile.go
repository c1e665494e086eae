// Package skillfile reads and writes the portable skill file format: a YAML
// front matter block followed by the skill's markdown content.
package skillfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Meta is the front matter of a skill file. Version records which version
// the content was exported from, so imports can keep the numbering.
type Meta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Visibility  string   `yaml:"visibility,omitempty"`
	Version     int      `yaml:"version,omitempty"`
}

// Encode renders meta and content as a skill file.
func Encode(meta Meta, content string) ([]byte, error) {
	if strings.TrimSpace(meta.Name) == "" {
		return nil, errors.New("skillfile: name is required")
	}
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(fm)
	buf.WriteString(delimiter + "\n")
	buf.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// Decode parses a skill file into its front matter and content.
func Decode(data []byte) (Meta, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, delimiter+"\n") {
		return Meta{}, "", errors.New("skillfile: missing front matter")
	}
	rest := text[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	if end == -1 {
		return Meta{}, "", errors.New("skillfile: unterminated front matter")
	}
	var meta Meta
	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return Meta{}, "", fmt.Errorf("parse front matter: %w", err)
	}
	if strings.TrimSpace(meta.Name) == "" {
		return Meta{}, "", errors.New("skillfile: name is required")
	}
	content := rest[end+1+len(delimiter):]
	content = strings.TrimPrefix(content, "\n")
	return meta, content, nil
}

// LoadSystemContext concatenates the *.md and *.skill files under dir in
// name order, separated by blank lines. A missing or empty dir yields "".
func LoadSystemContext(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read system skills dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".md" || ext == ".skill" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("read system skill %s: %w", name, err)
		}
		if body := strings.TrimSpace(string(data)); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
