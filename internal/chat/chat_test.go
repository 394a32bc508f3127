package chat_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jules02/NLQ-Agent/internal/chat"
)

type scripted struct {
	asked []string
	fail  map[string]error
}

func (s *scripted) Ask(_ context.Context, q string) (string, error) {
	s.asked = append(s.asked, q)
	if err := s.fail[q]; err != nil {
		return "", err
	}
	return "answer to " + q, nil
}

func TestRunAnswersUntilExit(t *testing.T) {
	a := &scripted{}
	var out bytes.Buffer
	in := strings.NewReader("how many employees?\n\n  EXIT  \nnever asked\n")

	require.NoError(t, chat.Run(context.Background(), in, &out, a, chat.Config{}))
	assert.Equal(t, []string{"how many employees?"}, a.asked)

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "🤖 SQL Agent (powered by Gemini) is ready."), text)
	assert.Contains(t, text, "Type 'exit' to quit.")
	assert.Contains(t, text, "You: how many employees?\n")
	assert.Contains(t, text, "Agent: answer to how many employees?\n")
	assert.NotContains(t, text, "never asked")
}

func TestRunContinuesAfterErrors(t *testing.T) {
	a := &scripted{fail: map[string]error{"first": errors.New("429 Too Many Requests")}}
	var out bytes.Buffer
	in := strings.NewReader("first\nsecond\n")

	require.NoError(t, chat.Run(context.Background(), in, &out, a, chat.Config{Prompt: "> ", ExitKeyword: "quit"}))
	assert.Equal(t, []string{"first", "second"}, a.asked)
	text := out.String()
	assert.Contains(t, text, "❌ An error occurred: 429 Too Many Requests\n"+chat.ErrorHint)
	assert.Contains(t, text, "Agent: answer to second")
	assert.Contains(t, text, "Type 'quit' to quit.")
}

func TestRunStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	require.NoError(t, chat.Run(ctx, r, &out, &scripted{}, chat.Config{}))
}

func TestRunReleasesReaderOnExit(t *testing.T) {
	before := runtime.NumGoroutine()
	in := strings.NewReader("exit\nleft over\nand more\n")
	require.NoError(t, chat.Run(context.Background(), in, io.Discard, &scripted{}, chat.Config{}))
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, chat.IsTerminal(&bytes.Buffer{}))
}
