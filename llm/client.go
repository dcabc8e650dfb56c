package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client talks to an OpenAI-compatible chat completion endpoint. The
// non-streamed paths go through the go-openai client; the streamed path
// reads the response body directly so frames split across network chunks
// can be reassembled (see stream.go).
type Client struct {
	api     *openai.Client
	httpc   *http.Client
	apiKey  string
	baseURL string
	cfg     Config
	log     Logger
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// NewClient creates a client. log may be nil.
func NewClient(cfg Config, log Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURL

	if log == nil {
		log = nopLogger{}
	}
	return &Client{
		api:     openai.NewClientWithConfig(clientConfig),
		httpc:   &http.Client{},
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		cfg:     cfg,
		log:     log,
	}
}

// buildRequest assembles the wire request from messages and options,
// falling back to the client's default model.
func (c *Client) buildRequest(messages []Message, opts ChatOptions, stream bool) openai.ChatCompletionRequest {
	wire := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, convertMessage(m))
	}

	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}

	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  wire,
		MaxTokens: opts.MaxTokens,
		Stream:    stream,
		Seed:      opts.Seed,
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if opts.TopP != nil {
		req.TopP = float32(*opts.TopP)
	}
	return req
}

// Chat sends a non-streamed completion request and returns the full reply.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.buildRequest(messages, opts, false))
	if err != nil {
		return "", wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// wrapAPIError converts go-openai errors into the package's typed error so
// callers see one taxonomy regardless of the path that produced the failure.
func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPStatusCode
		return &APIError{
			StatusCode: status,
			Message:    apiErr.Message,
			Raw:        []byte(fmt.Sprintf("%v", apiErr)),
		}
	}
	return err
}
