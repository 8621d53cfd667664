package iojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// ErrNoInput is returned when neither a file nor piped stdin is available.
var ErrNoInput = errors.New("no input provided (stdin is a terminal); use -f or pipe JSON input")

// FileReader reads a JSON document from the --file flag or from stdin.
type FileReader[T any] struct {
	fileFlagValue string
	stdin         *os.File
}

// Flag returns the --file flag bound to the reader.
func (fr *FileReader[T]) Flag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "file",
		Aliases:     []string{"f"},
		Usage:       "path to JSON file (reads from stdin if not provided)",
		Destination: &fr.fileFlagValue,
	}
}

// Provided reports whether input was given through --file or a pipe.
func (fr *FileReader[T]) Provided() bool {
	if fr.fileFlagValue != "" {
		return true
	}
	return !term.IsTerminal(int(fr.in().Fd()))
}

// Raw returns the undecoded input.
func (fr *FileReader[T]) Raw() ([]byte, error) {
	var reader io.Reader

	if fr.fileFlagValue != "" {
		f, err := os.Open(fr.fileFlagValue)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer func() { _ = f.Close() }()
		reader = f
	} else {
		if term.IsTerminal(int(fr.in().Fd())) {
			return nil, ErrNoInput
		}
		reader = fr.in()
	}

	return io.ReadAll(reader)
}

// Read decodes the input into T.
func (fr *FileReader[T]) Read() (T, error) {
	var input T

	raw, err := fr.Raw()
	if err != nil {
		return input, err
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return input, fmt.Errorf("decode JSON: %w", err)
	}
	return input, nil
}

func (fr *FileReader[T]) in() *os.File {
	if fr.stdin != nil {
		return fr.stdin
	}
	return os.Stdin
}
