package agent

// Wire types for the Gemini generateContent endpoint.
// https://ai.google.dev/api/generate-content

type content struct {
	Parts []*part `json:"parts"`
	Role  string  `json:"role,omitempty"`
}

type part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type functionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type functionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type functionDeclaration struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	ParametersJSONSchema map[string]any `json:"parametersJsonSchema,omitempty"`
}

type toolSet struct {
	FunctionDeclarations []*functionDeclaration `json:"functionDeclarations,omitempty"`
}

type generationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents          []*content       `json:"contents"`
	Tools             []*toolSet       `json:"tools,omitempty"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig,omitzero"`
}

type candidate struct {
	Content      *content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type generateResponse struct {
	Candidates     []*candidate    `json:"candidates,omitempty"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

const (
	roleUser  = "user"
	roleModel = "model"

	finishSafety = "SAFETY"
)
