package main

import (
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// lineSource yields outbound lines until io.EOF.
type lineSource interface {
	Next() (string, error)
}

type sliceSource struct {
	lines []string
}

func newSliceSource(lines []string) *sliceSource {
	return &sliceSource{lines: lines}
}

func (s *sliceSource) Next() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

type readlineSource struct {
	rl *readline.Instance
}

func newReadlineSource(name string, in io.ReadCloser, out io.Writer) (*readlineSource, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          name + "> ",
		HistoryLimit:    1000,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
		Stdin:           in,
		Stdout:          out,
	})
	if err != nil {
		return nil, err
	}
	return &readlineSource{rl: rl}, nil
}

func (s *readlineSource) Next() (string, error) {
	for {
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return line, nil
	}
}

func (s *readlineSource) Stdout() io.Writer {
	return s.rl.Stdout()
}

func (s *readlineSource) Close() error {
	return s.rl.Close()
}
