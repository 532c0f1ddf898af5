package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/odit-bit/tambal/tambal/agent"
	"google.golang.org/genai"
)

var _ agent.Provider = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	cli  *genai.Client
	conf *Config
}

func NewGeminiAdapter(ctx context.Context, key string, config *Config) (*GeminiAdapter, error) {
	if key == "" {
		return nil, fmt.Errorf("gemini_adapter api key cannot be empty")
	}

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: config.Endpoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed start gemini_adapter: %w", err)
	}

	return &GeminiAdapter{
		cli:  cli,
		conf: config,
	}, nil
}

// Chat implements agent.Provider.
func (g *GeminiAdapter) Chat(ctx context.Context, model string, msgs []*agent.Message) agent.Result {
	sys, contents, err := toContents(msgs)
	if err != nil {
		return agent.Result{Outcome: agent.Malformed, Err: err}
	}

	config := genai.GenerateContentConfig{
		SystemInstruction: sys,
		SafetySettings:    safetySetting,
		Temperature:       g.conf.Temperature,
		TopP:              g.conf.TopP,
		TopK:              g.conf.TopK,
	}
	if g.conf.MaxTokens > 0 {
		config.MaxOutputTokens = int32(g.conf.MaxTokens)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, model, contents, &config)
	if err != nil {
		return agent.Result{Outcome: genaiOutcome(err), Err: fmt.Errorf("genai_adapter failed generating content: %w", err)}
	}
	if len(resp.Candidates) == 0 {
		return agent.Result{Outcome: agent.Malformed, Err: errors.New("genai_adapter response has no candidates")}
	}

	return agent.Result{
		Outcome: agent.Success,
		Text:    resp.Text(),
		Model:   resp.ModelVersion,
	}
}

// toContents splits the system prompt out, gemini takes it as SystemInstruction.
func toContents(msgs []*agent.Message) (*genai.Content, []*genai.Content, error) {
	var sys *genai.Content
	contents := []*genai.Content{}

	for _, msg := range msgs {
		switch msg.Role {
		case agent.RoleSystem:
			sys = genai.NewContentFromText(msg.Content, genai.RoleUser)
		case agent.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		case agent.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		default:
			return nil, nil, fmt.Errorf("gemini_adapter unknown message role: %v", msg.Role)
		}
	}

	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("gemini_adapter content is empty")
	}
	return sys, contents, nil
}

func genaiOutcome(err error) agent.Outcome {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return agent.OutcomeFromStatus(apiErr.Code)
	}
	return agent.TransportError
}

var safetySetting = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}
