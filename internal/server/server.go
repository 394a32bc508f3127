package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Jules02/NLQ-Agent/internal/agent"
	"github.com/Jules02/NLQ-Agent/internal/chat"
	"github.com/Jules02/NLQ-Agent/internal/engine"
	"github.com/Jules02/NLQ-Agent/internal/forecast"
	"github.com/Jules02/NLQ-Agent/internal/repo"
	"github.com/Jules02/NLQ-Agent/internal/weather"
)

// maxChatSessions bounds the conversations kept in memory; the oldest is dropped first.
const maxChatSessions = 256

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig

	// NewChatSession starts a conversation with the language model. The chat
	// endpoint is only served when it is set.
	NewChatSession func() chat.Asker
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"employee 42: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"employee_id\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the NLQ API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("NLQ Agent API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group)
	registerWeather(group, cfg.Engine)
	registerLeave(group, cfg.Engine)
	registerEmployees(group, cfg.Engine)
	if cfg.NewChatSession != nil {
		registerChat(group, newSessionStore(cfg.NewChatSession))
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	var pe *weather.ProviderError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &ve):
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	case errors.Is(err, forecast.ErrInvalidDateRange), errors.Is(err, agent.ErrEmptyQuestion):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, engine.ErrWeatherUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "weather_unavailable", err.Error(), nil)
	case errors.As(err, &pe):
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), map[string]any{"operation": pe.Op})
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

// handleModelError maps chat failures: bad input stays 400, anything else
// came from the model round trip.
func handleModelError(err error) huma.StatusError {
	if errors.Is(err, agent.ErrEmptyQuestion) {
		return handleError(err)
	}
	return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var doc []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>NLQ Agent API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ActorID: p.ActorID, Source: p.Source}}, nil
	})
}

func registerWeather(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "current-weather",
		Method:      http.MethodGet,
		Path:        "/weather/current",
		Summary:     "Current temperature for a location",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Location string `query:"location" doc:"City and ISO country code; defaults to the configured office location"`
	}) (*struct {
		Body struct {
			Location     string  `json:"location"`
			City         string  `json:"city,omitempty"`
			TemperatureC float64 `json:"temperature_c"`
		} `json:"body"`
	}, error) {
		cur, err := e.CurrentWeather(ctx, input.Location)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Location     string  `json:"location"`
				City         string  `json:"city,omitempty"`
				TemperatureC float64 `json:"temperature_c"`
			} `json:"body"`
		}{}
		out.Body.Location = cur.Location
		out.Body.City = cur.City
		out.Body.TemperatureC = cur.TemperatureC
		return out, nil
	})
}

func registerLeave(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "plan-leave",
		Method:      http.MethodPost,
		Path:        "/leave/plan",
		Summary:     "Days whose forecast maximum reaches the threshold",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body PlanLeaveRequest `json:"body"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		plan, err := e.PlanLeave(ctx, input.Body.options())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: planResponse(plan)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "declare-leave",
		Method:      http.MethodPost,
		Path:        "/leave/declare",
		Summary:     "Record pending weather leave for every qualifying day",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body DeclareLeaveRequest `json:"body"`
	}) (*struct {
		Body DeclareResponse `json:"body"`
	}, error) {
		b := input.Body
		res, err := e.DeclareWeatherLeave(ctx, engine.DeclareOptions{
			PlanOptions: PlanLeaveRequest{Location: b.Location, StartDate: b.StartDate, EndDate: b.EndDate, Threshold: b.Threshold}.options(),
			EmployeeID:  b.EmployeeID,
			ManagerID:   b.ManagerID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeclareResponse `json:"body"`
		}{Body: declareResponse(res)}, nil
	})
}

func registerEmployees(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-employees",
		Method:      http.MethodGet,
		Path:        "/employees",
		Summary:     "List employees",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body EmployeeListResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListEmployees(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeListResponse `json:"body"`
		}{Body: EmployeeListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-leave-requests",
		Method:      http.MethodGet,
		Path:        "/employees/{employee_id}/leave-requests",
		Summary:     "Leave requests of an employee",
		Errors: []int{
			http.StatusBadRequest,
		},
	}, func(ctx context.Context, input *struct {
		EmployeeID int64  `path:"employee_id"`
		Type       string `query:"type"`
		Status     string `query:"status"`
	}) (*struct {
		Body LeaveListResponse `json:"body"`
	}, error) {
		items, err := e.ListLeaveRequests(ctx, input.EmployeeID, input.Type, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LeaveListResponse `json:"body"`
		}{Body: LeaveListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activity-report",
		Method:      http.MethodGet,
		Path:        "/employees/{employee_id}/activity-report",
		Summary:     "Formatted activity report of an employee",
		Errors: []int{
			http.StatusBadRequest,
		},
	}, func(ctx context.Context, input *struct {
		EmployeeID int64  `path:"employee_id"`
		From       string `query:"from" doc:"Earliest date, YYYY-MM-DD"`
		To         string `query:"to" doc:"Latest date, YYYY-MM-DD"`
	}) (*struct {
		Body ActivityReportResponse `json:"body"`
	}, error) {
		rep, err := e.ActivityReport(ctx, input.EmployeeID, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityReportResponse `json:"body"`
		}{Body: activityReportResponse(rep)}, nil
	})
}

func registerChat(api huma.API, sessions *sessionStore) {
	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/chat",
		Summary:     "Ask the assistant a question",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body ChatRequest `json:"body"`
	}) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		id, session, err := sessions.get(input.Body.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		answer, err := session.Ask(ctx, input.Body.Message)
		if err != nil {
			return nil, handleModelError(err)
		}
		return &struct {
			Body ChatResponse `json:"body"`
		}{Body: ChatResponse{SessionID: id, Answer: answer}}, nil
	})
}

type sessionStore struct {
	mu       sync.Mutex
	newAsker func() chat.Asker
	sessions map[string]chat.Asker
	order    []string
}

func newSessionStore(fn func() chat.Asker) *sessionStore {
	return &sessionStore{newAsker: fn, sessions: make(map[string]chat.Asker)}
}

// get returns the named session, or a new one when id is empty.
func (s *sessionStore) get(id string) (string, chat.Asker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		a, ok := s.sessions[id]
		if !ok {
			return "", nil, fmt.Errorf("chat session %s: %w", id, repo.ErrNotFound)
		}
		return id, a, nil
	}
	id = uuid.NewString()
	a := s.newAsker()
	s.sessions[id] = a
	s.order = append(s.order, id)
	if len(s.order) > maxChatSessions {
		delete(s.sessions, s.order[0])
		s.order = s.order[1:]
	}
	return id, a, nil
}
