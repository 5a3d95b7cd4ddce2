// Package parser splits an article file into its leading metadata block and
// its body.
//
// Two header forms are recognised: a YAML block fenced by "---" lines, and a
// plain block of "key: value" lines terminated by a blank line.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/folio/internal/article"
)

const delim = "---"

var plainKeyRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_-]*):\s*(.*)$`)

// Result holds the output of parsing an article file.
type Result struct {
	Meta map[string]any
	Body string
}

// Parse extracts the metadata block and body from raw file bytes.
// A malformed header is not an error: the whole file becomes the body.
func Parse(data []byte) (*Result, error) {
	meta, n, err := header(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return &Result{Body: string(data)}, nil
	}
	return &Result{
		Meta: meta,
		Body: strings.TrimLeft(string(data[n:]), "\n\r"),
	}, nil
}

// ReadHeader reads only as much of r as the metadata block needs.
// It returns nil when there is no well-formed block.
func ReadHeader(r io.Reader) (map[string]any, error) {
	meta, _, err := header(bufio.NewReader(r))
	return meta, err
}

// header returns the parsed block and the number of bytes it spans,
// including the closing delimiter or blank line.
func header(br *bufio.Reader) (map[string]any, int, error) {
	first, err := readLine(br)
	if err != nil {
		return nil, 0, ignoreEOF(err)
	}
	n := len(first)

	if strings.TrimSpace(first) == delim {
		var block strings.Builder
		for {
			line, err := readLine(br)
			if err != nil {
				// No closing delimiter: treat everything as body.
				return nil, 0, ignoreEOF(err)
			}
			n += len(line)
			if strings.TrimRight(line, "\r\n") == delim {
				break
			}
			block.WriteString(line)
		}
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(block.String()), &raw); err != nil {
			return nil, 0, nil
		}
		return normalizeMeta(raw), n, nil
	}

	meta := make(map[string]any)
	line := first
	for {
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(trimmed) == "" {
			if len(meta) == 0 {
				return nil, 0, nil
			}
			return normalizeMeta(meta), n, nil
		}
		m := plainKeyRe.FindStringSubmatch(trimmed)
		if m == nil {
			return nil, 0, nil
		}
		meta[m[1]] = strings.TrimSpace(m[2])

		line, err = readLine(br)
		if err != nil {
			// A header must be followed by a blank line.
			return nil, 0, ignoreEOF(err)
		}
		n += len(line)
	}
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return line, nil
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// normalizeMeta lowercases keys and turns "tags" into a string list.
func normalizeMeta(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[strings.ToLower(k)] = v
	}
	if v, ok := out["tags"]; ok {
		out["tags"] = article.StringList(v)
	}
	return out
}
