package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Prompter asks the operator a question and returns the answer.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, question string) (string, error)

func (f PromptFunc) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// TextPrompter reads answers line by line. Reading happens on a background
// goroutine so that a cancelled context abandons the question immediately.
type TextPrompter struct {
	reader *bufio.Reader
	writer io.Writer
	limit  int

	lines     chan lineResult
	startOnce sync.Once
}

type lineResult struct {
	text string
	err  error
}

// NewTextPrompter creates a prompter over r and w, defaulting to stdin and stdout.
func NewTextPrompter(r io.Reader, w io.Writer) *TextPrompter {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &TextPrompter{reader: bufio.NewReader(r), writer: w}
}

func (p *TextPrompter) initPump() {
	p.startOnce.Do(func() {
		p.lines = make(chan lineResult)
		go p.pump()
	})
}

func (p *TextPrompter) pump() {
	for {
		text, err := p.reader.ReadString('\n')
		if text != "" {
			p.lines <- lineResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				close(p.lines)
				return
			}
			p.lines <- lineResult{err: err}
			// Backoff for persistent read failures.
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// Limit caps the answer size in bytes; zero means MaxAnswerSize.
func (p *TextPrompter) Limit(n int) *TextPrompter {
	p.limit = n
	return p
}

// Ask prints the question and a "> " prompt, then waits for a cleaned line.
// Lines CleanAnswer rejects are reported and the prompt repeats.
func (p *TextPrompter) Ask(ctx context.Context, question string) (string, error) {
	p.initPump()
	if question != "" {
		fmt.Fprintln(p.writer, strings.TrimSpace(question))
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(p.writer, "> ")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-p.lines:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := CleanAnswer(res.text, p.limit)
			if err != nil {
				fmt.Fprintf(p.writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}
