package bulkload

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// Source enumerates the ids to add. backing.Lister implementations are sources.
type Source interface {
	List(ctx context.Context, fn func(id string) error) error
}

// Max bytes for a single line of input.
const maxLineBytes = 1024 * 1024

// LineSource reads one id per line, ignoring blank lines and surrounding whitespace.
type LineSource struct {
	r io.Reader
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r}
}

func (s *LineSource) List(ctx context.Context, fn func(id string) error) error {
	return scanLines(ctx, s.r, func(line []byte) error {
		id := strings.TrimSpace(string(line))
		if id == "" {
			return nil
		}
		return fn(id)
	})
}

// JSONLinesSource reads one json document per line and takes the id from a gjson path.
type JSONLinesSource struct {
	r    io.Reader
	path string
}

func NewJSONLinesSource(r io.Reader, path string) *JSONLinesSource {
	return &JSONLinesSource{r: r, path: path}
}

func (s *JSONLinesSource) List(ctx context.Context, fn func(id string) error) error {
	lineNo := 0
	return scanLines(ctx, s.r, func(line []byte) error {
		lineNo++
		if len(strings.TrimSpace(string(line))) == 0 {
			return nil
		}
		if !gjson.ValidBytes(line) {
			return fmt.Errorf("line %d is not valid json", lineNo)
		}
		val := gjson.GetBytes(line, s.path)
		if !val.Exists() || val.String() == "" {
			return fmt.Errorf("line %d has no '%s'", lineNo, s.path)
		}
		return fn(val.String())
	})
}

func scanLines(ctx context.Context, r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
