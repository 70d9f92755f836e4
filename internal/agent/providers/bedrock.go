package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aisbot/aisbot/internal/agent"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

const bedrockImageMaxBytes = 20 * 1024 * 1024

// BedrockConfig configures the AWS Bedrock provider. Credentials fall
// back to the default AWS chain (environment, shared config, IAM role)
// when not set explicitly.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	MaxRetries      int
	RetryDelay      time.Duration
}

// BedrockProvider serves foundation models hosted on AWS Bedrock through
// the Converse API. Models route here via the bedrock/ prefix, e.g.
// bedrock/anthropic.claude-3-5-sonnet-20241022-v2:0.
type BedrockProvider struct {
	client *bedrockruntime.Client
	base   BaseProvider
}

// NewBedrock creates a Bedrock provider.
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockProvider{
		client: bedrockruntime.NewFromConfig(awsCfg),
		base:   NewBaseProvider("bedrock", cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

// Name returns the provider identifier.
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// MatchModel claims models carrying the explicit bedrock/ prefix.
func (p *BedrockProvider) MatchModel(model string) bool {
	return strings.HasPrefix(model, "bedrock/")
}

// Chat sends a non-streaming Converse request.
func (p *BedrockProvider) Chat(ctx context.Context, req *agent.ChatRequest) (*models.LLMResponse, error) {
	model := strings.TrimPrefix(req.Model, "bedrock/")

	system, msgs := convertBedrockMessages(req.Messages)
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: msgs,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = convertBedrockTools(req.Tools)
	}

	var out *bedrockruntime.ConverseOutput
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var callErr error
		out, callErr = p.client.Converse(ctx, input)
		if callErr != nil {
			return NewProviderError("bedrock", model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parseBedrockOutput(out), nil
}

// convertBedrockMessages splits out the system prompt and maps the rest
// onto Converse content blocks. Tool results ride on user messages.
func convertBedrockMessages(messages []models.ChatMessage) (string, []types.Message) {
	var system []string
	var result []types.Message

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			system = append(system, msg.Content)
			continue
		}

		var content []types.ContentBlock
		switch msg.Role {
		case models.RoleTool:
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: msg.Content},
					},
				},
			})
		case models.RoleAssistant:
			if msg.Content != "" {
				content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(tc.ID),
						Name:      aws.String(tc.Function.Name),
						Input:     document.NewLazyDocument(decodeArguments(tc.Function.Arguments)),
					},
				})
			}
		default:
			if len(msg.Parts) > 0 {
				content = append(content, convertBedrockParts(msg.Parts)...)
			} else if msg.Content != "" {
				content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
			}
		}

		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}

	return strings.Join(system, "\n\n"), result
}

func convertBedrockParts(parts []models.ContentPart) []types.ContentBlock {
	var content []types.ContentBlock
	for _, part := range parts {
		switch part.Type {
		case "image_url":
			if part.ImageURL == nil {
				continue
			}
			data, mimeType, err := parseDataURL(part.ImageURL.URL)
			if err != nil || len(data) > bedrockImageMaxBytes {
				continue
			}
			format, ok := bedrockImageFormat(mimeType)
			if !ok {
				continue
			}
			content = append(content, &types.ContentBlockMemberImage{
				Value: types.ImageBlock{
					Format: format,
					Source: &types.ImageSourceMemberBytes{Value: data},
				},
			})
		default:
			if part.Text != "" {
				content = append(content, &types.ContentBlockMemberText{Value: part.Text})
			}
		}
	}
	return content
}

func bedrockImageFormat(mimeType string) (types.ImageFormat, bool) {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	default:
		return "", false
	}
}

func convertBedrockTools(defs []tools.Definition) *types.ToolConfiguration {
	bedrockTools := make([]types.Tool, 0, len(defs))
	for _, def := range defs {
		var schema any = def.Function.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		bedrockTools = append(bedrockTools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(def.Function.Name),
				Description: aws.String(def.Function.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: bedrockTools}
}

func parseBedrockOutput(out *bedrockruntime.ConverseOutput) *models.LLMResponse {
	resp := &models.LLMResponse{FinishReason: "stop"}
	if out.Usage != nil {
		resp.Usage = models.Usage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}

	message, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return resp
	}

	var text strings.Builder
	for _, block := range message.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text.WriteString(b.Value)
		case *types.ContentBlockMemberToolUse:
			args := map[string]any{}
			if b.Value.Input != nil {
				if err := b.Value.Input.UnmarshalSmithyDocument(&args); err != nil {
					args = map[string]any{}
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCallRequest{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: args,
			})
		}
	}
	resp.Content = text.String()
	resp.FinishReason = normalizeFinishReason(string(out.StopReason), len(resp.ToolCalls) > 0)
	return resp
}
