package advisor

import (
	"context"
	"fmt"
	"strings"

	"ChipClash/internal/game/table"
	"ChipClash/internal/utils"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
}

type OpenAI struct {
	client     openai.Client
	model      string
	imageModel string
	log        *log.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = string(openai.ImageModelDallE3)
	}
	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      model,
		imageModel: imageModel,
		log:        utils.Named("advisor"),
	}
}

func (a *OpenAI) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoContent
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrNoContent
	}
	a.log.Debug("completion", "model", a.model, "tokens", resp.Usage.TotalTokens)
	return text, nil
}

func (a *OpenAI) Summarize(ctx context.Context, r *table.Room) (string, error) {
	return a.complete(ctx, summarySystem, summaryPrompt(r))
}

func (a *OpenAI) Advise(ctx context.Context, team, opponent table.Team, m table.Match) (string, error) {
	return a.complete(ctx, adviseSystem, advicePrompt(team, opponent, m))
}

// RenderPoster ignores the reference images; the image endpoint used here
// only takes a prompt.
func (a *OpenAI) RenderPoster(ctx context.Context, team table.Team, images, names []string) (string, error) {
	resp, err := a.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:  openai.ImageModel(a.imageModel),
		Prompt: posterPrompt(team, names),
		N:      openai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", ErrNoContent
	}
	img := resp.Data[0]
	switch {
	case img.URL != "":
		return img.URL, nil
	case img.B64JSON != "":
		return "data:image/png;base64," + img.B64JSON, nil
	}
	return "", ErrNoContent
}
