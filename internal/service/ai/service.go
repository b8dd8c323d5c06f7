package ai

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/spectraflex/omnichat/internal/config"
	"github.com/spectraflex/omnichat/internal/model/chat"
	"github.com/spectraflex/omnichat/internal/service/rag"
)

// Reply is a finished model answer with its token cost.
type Reply struct {
	Answer string
	Tokens int
}

// Service runs the retrieval-augmented chat chain.
type Service struct {
	chatModel model.BaseChatModel
	stream    bool
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the service backed by the configured OpenAI model.
func NewService(ctx context.Context, cfg config.OpenAIConfig) (*Service, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("OPENAI_API_KEY and OPENAI_MODEL_CHAT are required")
	}

	maxTokens := cfg.MaxTokens
	chatModel, err := openaimodel.NewChatModel(ctx, &openaimodel.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.ChatModel,
		MaxTokens:   &maxTokens,
		Temperature: cfg.Temperature,
		Timeout:     60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return NewServiceWithModel(ctx, chatModel, cfg.StreamResponse)
}

// NewServiceWithModel builds the chain around an existing model. Tests
// inject fakes through here.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, stream bool) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, stream: stream, chain: runnable}, nil
}

// Respond produces the concierge answer for one user message. Markers that
// cite variants absent from the retrieved context are stripped before the
// answer is returned.
func (s *Service) Respond(ctx context.Context, sessionID string, history []chat.Message, question string, matches []rag.Match) (Reply, error) {
	input := map[string]any{
		"system":  buildSystemPrompt(matches),
		"history": buildHistoryMessages(history),
		"query":   question,
	}

	var response *schema.Message
	var err error
	if s.stream {
		response, err = s.streamAndDrain(ctx, input)
	} else {
		response, err = s.chain.Invoke(ctx, input)
	}
	if err != nil {
		return Reply{}, fmt.Errorf("failed to run chat chain: %w", err)
	}

	answer := FilterMarkers(strings.TrimSpace(response.Content), allowedVariants(matches))
	tokens := tokenUsage(response, question, answer)

	log.Debug().
		Str("session", sessionID).
		Int("tokens", tokens).
		Int("length", len(answer)).
		Msg("generated answer")
	return Reply{Answer: answer, Tokens: tokens}, nil
}

// streamAndDrain consumes the stream into a single message. The widget
// protocol delivers one answer frame per question, so partial chunks never
// leave the server.
func (s *Service) streamAndDrain(ctx context.Context, input map[string]any) (*schema.Message, error) {
	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("model stream produced no output")
	}
	return schema.ConcatMessages(chunks)
}

func tokenUsage(response *schema.Message, question, answer string) int {
	if response.ResponseMeta != nil && response.ResponseMeta.Usage != nil {
		return response.ResponseMeta.Usage.TotalTokens
	}
	// Provider omitted usage; rough 4-chars-per-token estimate keeps the
	// session budget depleting.
	return (len(question) + len(answer)) / 4
}

func allowedVariants(matches []rag.Match) map[string]struct{} {
	allowed := make(map[string]struct{})
	for _, m := range matches {
		for _, id := range m.Metadata.VariantIDs {
			allowed[id] = struct{}{}
		}
	}
	return allowed
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	const historyLimit = 10

	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case "user":
			history = append(history, schema.UserMessage(msg.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
