package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/internal/extraction"
	"github.com/shliew97/frappe-whatsapp/internal/intent"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// LLM bundles the wrapped model client with the model id requests should name.
type LLM struct {
	Client conversation.LLMClient
	Model  string
}

// BuildLLM wires the configured provider. Bedrock falls back to Gemini when a
// Gemini key is also present. A nil result means keyword-only operation.
func BuildLLM(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*LLM, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		primary conversation.LLMClient
		model   string
	)
	switch cfg.LLMProvider {
	case "none", "":
		logger.Warn("no LLM provider configured; using keyword classifier and regex extraction")
		return nil, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for bedrock")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: bedrock requires AWS config")
		}
		primary = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
		model = cfg.BedrockModelID
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				logger.Warn("gemini fallback unavailable", "error", err)
			} else {
				primary = conversation.NewFallbackLLMClient(primary, gemini, logger)
				logger.Info("gemini fallback enabled", "model", cfg.GeminiModelID)
			}
		}
	case "gemini":
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		primary = gemini
		model = cfg.GeminiModelID
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM provider %q", cfg.LLMProvider)
	}

	logger.Info("using LLM provider", "provider", cfg.LLMProvider, "model", model)
	return &LLM{
		Client: conversation.NewRetryingLLMClient(primary, cfg.LLMTimeout, cfg.LLMMaxRetries, logger),
		Model:  model,
	}, nil
}

// Understanding groups the message-understanding capabilities the engine consumes.
type Understanding struct {
	Intents   *intent.Resolver
	Updates   intent.UpdateDetector
	Extractor extraction.Extractor
	Answerer  conversation.Answerer
}

// BuildUnderstanding layers the model-backed capabilities over their
// deterministic fallbacks. llm may be nil.
func BuildUnderstanding(llm *LLM, knowledge conversation.KnowledgeRepository, loc *time.Location, calls extraction.CallObserver, logger *logging.Logger) Understanding {
	if logger == nil {
		logger = logging.Default()
	}
	parser := extraction.NewRegexExtractor(loc)
	keywordUpdates := intent.NewKeywordUpdateDetector(parser)

	var opts []extraction.ChainOption
	if calls != nil {
		opts = append(opts, extraction.WithCallObserver(calls))
	}

	if llm == nil {
		return Understanding{
			Intents:   intent.NewResolver(nil, logger),
			Updates:   keywordUpdates,
			Extractor: extraction.NewChainExtractor(nil, parser, logger, opts...),
		}
	}
	return Understanding{
		Intents:   intent.NewResolver(intent.NewLLMClassifier(llm.Client, llm.Model), logger),
		Updates:   intent.NewFallbackUpdateDetector(intent.NewLLMUpdateDetector(llm.Client, llm.Model, loc), keywordUpdates, logger),
		Extractor: extraction.NewChainExtractor(extraction.NewLLMExtractor(llm.Client, llm.Model, loc), parser, logger, opts...),
		Answerer:  conversation.NewLLMAnswerer(llm.Client, knowledge, llm.Model, logger),
	}
}

// BuildKnowledgeRepository returns the Redis knowledge repository, seeding
// defaults when it is empty. It returns nil without Redis.
func BuildKnowledgeRepository(ctx context.Context, redisClient *redis.Client, logger *logging.Logger) conversation.KnowledgeRepository {
	if redisClient == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	repo := conversation.NewRedisKnowledgeRepository(redisClient)
	if err := ensureDefaultKnowledge(ctx, repo); err != nil {
		logger.Warn("failed to seed default knowledge", "error", err)
	}
	return repo
}

func ensureDefaultKnowledge(ctx context.Context, repo conversation.KnowledgeRepository) error {
	existing, err := repo.GetDocuments(ctx, conversation.GlobalTopic)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	docs := []string{
		"Outlets are open daily from 11:00 AM to 11:30 PM; the last booking slot is 11:30 PM.",
		"Bookings need an outlet, preferred date and time, a name and a phone number. Sessions default to 90 minutes.",
		"Customers can change or cancel a confirmed booking by replying on WhatsApp with the new details or the word cancel.",
	}
	return repo.AppendDocuments(ctx, conversation.GlobalTopic, docs)
}
