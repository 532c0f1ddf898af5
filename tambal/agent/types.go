package agent

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewTextMessage(role Role, text string) *Message {
	return &Message{Role: role, Content: text}
}

// Outcome tags the result of one backend attempt.
type Outcome int

const (
	Success Outcome = iota
	RateLimited
	Overloaded
	ModelUnavailable
	ServerError
	AuthError
	Malformed
	TransportError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case Overloaded:
		return "overloaded"
	case ModelUnavailable:
		return "model_unavailable"
	case ServerError:
		return "server_error"
	case AuthError:
		return "auth_error"
	case Malformed:
		return "malformed"
	case TransportError:
		return "transport_error"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Recoverable reports whether the dispatcher may move on to the next
// candidate. Only credential failures are fatal, they recur for every model.
func (o Outcome) Recoverable() bool {
	return o != Success && o != AuthError
}

// Result is decoded once at the driver boundary so nothing downstream ever
// looks at raw status codes.
type Result struct {
	Outcome Outcome
	Text    string
	Model   string
	// upstream detail, for logs only
	Err error
}

// OutcomeFromStatus maps an upstream HTTP status to an outcome.
func OutcomeFromStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return Success
	case code == 401:
		return AuthError
	case code == 429:
		return RateLimited
	case code == 503 || code == 529:
		return Overloaded
	case code == 400 || code == 404:
		return ModelUnavailable
	}
	return ServerError
}

// Completion is a successful dispatch.
type Completion struct {
	Text  string
	Model string
}

// ShortModelName drops a vendor prefix, "deepseek/deepseek-r1" -> "deepseek-r1".
func ShortModelName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// ParseThink drops a leading <think>...</think> reasoning block.
func ParseThink(msg string) string {
	const closeTag = "</think>"
	if idx := strings.Index(msg, closeTag); idx != -1 {
		return strings.TrimSpace(msg[idx+len(closeTag):])
	}
	return msg
}
