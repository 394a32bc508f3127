// Package chat runs the interactive question and answer loop on a terminal.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	term "golang.org/x/term"
)

const (
	Banner       = "🤖 SQL Agent (powered by Gemini) is ready. Ask questions about your database. Type '%s' to quit."
	AnswerPrefix = "Agent: "
	ErrorHint    = "   This might be due to API rate limits. Please wait a moment and try again."
)

// Asker answers one question, usually with the conversation so far in mind.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

type Config struct {
	Prompt      string
	ExitKeyword string
}

// Run reads questions from in until the exit keyword, end of input or ctx is
// done. Answers and errors are written to out; a failed question does not end
// the loop. The reader goroutine stops once Run returns, except that a Read
// already blocked on in (an idle terminal) only returns with the next line or
// end of input.
func Run(ctx context.Context, in io.Reader, out io.Writer, a Asker, cfg Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Prompt == "" {
		cfg.Prompt = "You: "
	}
	if cfg.ExitKeyword == "" {
		cfg.ExitKeyword = "exit"
	}
	// Piped input is not echoed by a terminal, so echo it to keep the transcript readable.
	echo := !IsTerminal(in)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	fmt.Fprintf(out, Banner+"\n", cfg.ExitKeyword)
	for {
		fmt.Fprint(out, cfg.Prompt)
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}
		if echo {
			fmt.Fprintln(out, line)
		}
		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}
		if strings.EqualFold(question, cfg.ExitKeyword) {
			return nil
		}
		answer, err := a.Ask(ctx, question)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out)
				return nil
			}
			fmt.Fprintf(out, "❌ An error occurred: %v\n%s\n", err, ErrorHint)
			continue
		}
		fmt.Fprintln(out, AnswerPrefix+answer)
	}
}

// IsTerminal reports whether v is a file attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
