package ai

// Role of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// CompletionRequest is a two-part prompt sent to the chat model.
type CompletionRequest struct {
	// Variant labels metrics and spans ("summary", "risk_flags").
	Variant   string
	System    string
	User      string
	MaxTokens int
}

// ChatMessage is one entry of a chat-completion request.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the wire format of a chat-completion request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// ChatResponse is the subset of the chat-completion response we read.
type ChatResponse struct {
	ID      string       `json:"id,omitempty"`
	Model   string       `json:"model,omitempty"`
	Choices []ChatChoice `json:"choices"`
}

// ChatChoice is one completion alternative.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// HealthStatus is returned by the health endpoint.
type HealthStatus struct {
	Status  string `json:"status"`
	Breaker string `json:"breaker"`
	Model   string `json:"model"`
}
