package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxLineBytes = 1 << 20

// decodeFile lee una lista de T desde path. .yaml/.yml se decodifica como
// una lista YAML; cualquier otra extensión como JSONL, una entrada por línea.
// Las líneas JSONL que no parsean se saltan con un warning.
func decodeFile[T any](path string) ([]T, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML[T](path)
	default:
		return decodeJSONL[T](path)
	}
}

func decodeYAML[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	var out []T
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	return out, nil
}

func decodeJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	var out []T
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			slog.Warn("feed: bad line skipped", "file", filepath.Base(path), "line", n, "err", err)
			continue
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("scan %q: %w", path, err)
	}
	return out, nil
}
