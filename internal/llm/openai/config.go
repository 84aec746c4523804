package openai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/inbox-ledger/internal/llm"
)

// Config for the OpenAI client.
type Config struct {
	APIKey      string
	BaseURL     string // default https://api.openai.com/v1
	Model       string // must accept image input, e.g. "gpt-4o"
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration // http client timeout

	// StructuredOutput requests a strict json_schema response instead of json_object.
	StructuredOutput bool
	// ImageDetail is passed through to the image_url part ("low", "high", "auto").
	ImageDetail string
}

type Client struct {
	cfg    Config
	http   *http.Client
	schema map[string]any
	valid  *jsonschema.Schema
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.ImageDetail == "" {
		cfg.ImageDetail = "high"
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema := llm.BuildReceiptJSONSchema()
	compiled, err := llm.CompileSchema(schema)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		schema: schema,
		valid:  compiled,
		logger: logger,
	}, nil
}
