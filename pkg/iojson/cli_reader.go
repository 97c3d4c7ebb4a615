package iojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// FileReader decodes a document given with a -f flag, or piped on stdin when
// the flag is absent. Files ending in .yaml or .yml are decoded as YAML,
// anything else as JSON.
type FileReader[T any] struct {
	fileFlagValue string
	stdin         io.Reader
}

// Flag returns the -f/--file flag bound to the reader.
func (fr *FileReader[T]) Flag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "file",
		Aliases:     []string{"f"},
		Usage:       "path to a JSON or YAML file (reads JSON from stdin if not provided)",
		Destination: &fr.fileFlagValue,
	}
}

// Read decodes the input document.
func (fr *FileReader[T]) Read() (T, error) {
	var input T

	if fr.fileFlagValue != "" {
		f, err := os.Open(fr.fileFlagValue)
		if err != nil {
			return input, fmt.Errorf("open file: %w", err)
		}
		defer func() { _ = f.Close() }()

		switch strings.ToLower(filepath.Ext(fr.fileFlagValue)) {
		case ".yaml", ".yml":
			if err := yaml.NewDecoder(f).Decode(&input); err != nil {
				return input, fmt.Errorf("decode YAML: %w", err)
			}
			return input, nil
		}
		return decodeJSON[T](f)
	}

	reader := fr.stdin
	if reader == nil {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return input, fmt.Errorf("no input provided (stdin is a terminal); use -f flag or pipe JSON input")
		}
		reader = os.Stdin
	}
	return decodeJSON[T](reader)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var input T
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return input, fmt.Errorf("decode JSON: %w", err)
	}
	return input, nil
}
