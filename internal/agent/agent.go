/*
Package agent drives a Gemini function-calling conversation over the tools
of a tool.Toolkit. Each Session keeps its own history; a question is sent
together with that history and any function calls the model makes are
answered from the toolkit until the model replies with text.
*/
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	client "github.com/mutablelogic/go-client"

	"github.com/Jules02/NLQ-Agent/internal/tool"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultMaxSteps = 8

	// SystemInstruction frames every conversation.
	SystemInstruction = `You are an assistant for an HR database of employees, activity records and leave requests.
Answer questions by calling the available tools; never invent data.
For free-form questions, list the tables, inspect the relevant schemas, then run a single read-only SELECT.
Use activity_report for activity summaries and the weather tools to plan or declare weather leave.
Only declare leave when the user explicitly asks to declare or request it.
If a tool returns an error, explain it or correct your call and try again.
Reply in plain text.`
)

var (
	ErrMissingAPIKey = errors.New("model api key is required")
	ErrEmptyQuestion = errors.New("question is empty")
	ErrMaxSteps      = errors.New("model did not answer within the step limit")
	ErrBlocked       = errors.New("request blocked by the model")
	ErrNoResponse    = errors.New("model returned no response")
)

type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxSteps    int
	System      string
	Logger      *log.Logger
}

type Agent struct {
	*client.Client
	model        string
	temperature  float64
	maxSteps     int
	system       string
	tools        *tool.Toolkit
	declarations []*functionDeclaration
	log          *log.Logger
}

// New returns an agent calling cfg.Model with the tools in tk.
func New(cfg Config, tk *tool.Toolkit, opts ...client.ClientOpt) (*Agent, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model name is required")
	}
	if tk == nil {
		return nil, errors.New("toolkit is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	opts = append(opts,
		client.OptEndpoint(endpoint),
		client.OptHeader("x-goog-api-key", cfg.APIKey),
	)
	c, err := client.New(opts...)
	if err != nil {
		return nil, err
	}
	decls, err := declarations(tk)
	if err != nil {
		return nil, err
	}
	a := &Agent{
		Client:       c,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxSteps:     cfg.MaxSteps,
		system:       cfg.System,
		tools:        tk,
		declarations: decls,
		log:          cfg.Logger,
	}
	if a.maxSteps <= 0 {
		a.maxSteps = DefaultMaxSteps
	}
	if a.system == "" {
		a.system = SystemInstruction
	}
	if a.log == nil {
		a.log = log.New(io.Discard, "", 0)
	}
	return a, nil
}

func declarations(tk *tool.Toolkit) ([]*functionDeclaration, error) {
	var out []*functionDeclaration
	for _, t := range tk.Tools() {
		schema, err := t.Schema()
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", t.Name(), err)
		}
		decl := &functionDeclaration{Name: t.Name(), Description: t.Description()}
		if schema != nil {
			data, err := json.Marshal(schema)
			if err != nil {
				return nil, fmt.Errorf("schema for %s: %w", t.Name(), err)
			}
			if err := json.Unmarshal(data, &decl.ParametersJSONSchema); err != nil {
				return nil, fmt.Errorf("schema for %s: %w", t.Name(), err)
			}
		}
		out = append(out, decl)
	}
	return out, nil
}

// Session is one conversation. It is safe for concurrent use; questions are
// answered one at a time.
type Session struct {
	agent   *Agent
	mu      sync.Mutex
	history []*content
}

func (a *Agent) NewSession() *Session {
	return &Session{agent: a}
}

// Ask is a one-off question with no history.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	return a.NewSession().Ask(ctx, question)
}

// Ask sends question with the session history and returns the model's final
// text answer. On error the history is left as it was before the call.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mark := len(s.history)
	s.history = append(s.history, &content{Role: roleUser, Parts: []*part{{Text: question}}})
	answer, err := s.run(ctx)
	if err != nil {
		s.history = s.history[:mark]
		return "", err
	}
	return answer, nil
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Reset clears the history.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *Session) run(ctx context.Context) (string, error) {
	a := s.agent
	for step := 0; step < a.maxSteps; step++ {
		reply, err := a.generate(ctx, s.history)
		if err != nil {
			return "", err
		}
		s.history = append(s.history, reply)

		var calls []*functionCall
		var text []string
		for _, p := range reply.Parts {
			switch {
			case p.FunctionCall != nil:
				calls = append(calls, p.FunctionCall)
			case p.Text != "":
				text = append(text, p.Text)
			}
		}
		if len(calls) == 0 {
			return strings.TrimSpace(strings.Join(text, "")), nil
		}

		results := make([]*part, 0, len(calls))
		for _, call := range calls {
			a.log.Printf("step %d: %s %v", step+1, call.Name, call.Args)
			out := a.tools.Call(ctx, call.Name, call.Args)
			a.log.Printf("step %d: %s -> %s", step+1, call.Name, out)
			results = append(results, &part{FunctionResponse: &functionResponse{
				Name:     call.Name,
				Response: map[string]any{"result": out},
			}})
		}
		s.history = append(s.history, &content{Role: roleUser, Parts: results})
	}
	return "", fmt.Errorf("%w (%d)", ErrMaxSteps, a.maxSteps)
}

func (a *Agent) generate(ctx context.Context, history []*content) (*content, error) {
	temperature := a.temperature
	req := generateRequest{
		Contents:          history,
		SystemInstruction: &content{Parts: []*part{{Text: a.system}}},
		GenerationConfig:  generationConfig{Temperature: &temperature},
	}
	if len(a.declarations) > 0 {
		req.Tools = []*toolSet{{FunctionDeclarations: a.declarations}}
	}
	payload, err := client.NewJSONRequest(req)
	if err != nil {
		return nil, err
	}
	var resp generateResponse
	if err := a.DoWithContext(ctx, payload, &resp, client.OptPath("models", a.model+":generateContent")); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == finishSafety {
			return nil, fmt.Errorf("%w: %s", ErrBlocked, finishSafety)
		}
		return nil, ErrNoResponse
	}
	reply := resp.Candidates[0].Content
	if reply.Role == "" {
		reply.Role = roleModel
	}
	return reply, nil
}
