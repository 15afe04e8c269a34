package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/satriahrh/cocoa-fruit/relay/domain"
)

const completionsPath = "chat/completions"

// DeepSeekClient talks to DeepSeek's OpenAI-compatible chat/completions
// endpoint. Requests are sent once; failures are never retried.
type DeepSeekClient struct {
	client openai.Client
}

func NewDeepSeekClient(apiKey, baseURL string, httpClient *http.Client) *DeepSeekClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
		// NewClient picks up OPENAI_ORG_ID and OPENAI_PROJECT_ID; they are not DeepSeek's business.
		option.WithHeaderDel("OpenAI-Organization"),
		option.WithHeaderDel("OpenAI-Project"),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &DeepSeekClient{client: openai.NewClient(opts...)}
}

func (d *DeepSeekClient) Complete(ctx context.Context, req domain.UpstreamRequest) (*domain.Completion, error) {
	var (
		raw        *http.Response
		completion domain.Completion
	)
	err := d.client.Post(ctx, completionsPath, req, &completion, option.WithResponseInto(&raw))
	if err != nil {
		return nil, upstreamError(raw, err)
	}
	return &completion, nil
}

func (d *DeepSeekClient) Stream(ctx context.Context, req domain.UpstreamRequest) (io.ReadCloser, error) {
	var resp *http.Response
	err := d.client.Post(ctx, completionsPath, req, &resp, option.WithHeader("Accept", "text/event-stream"))
	if err != nil {
		return nil, upstreamError(resp, err)
	}
	if resp == nil || resp.Body == nil {
		return nil, errors.New("deepseek stream: empty response")
	}
	return resp.Body, nil
}

// upstreamError turns a failed call into *domain.UpstreamError when the
// upstream answered with a status, keeping its body text verbatim.
func upstreamError(resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode >= http.StatusMultipleChoices {
		var body []byte
		if resp.Body != nil {
			body, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
		}
		return &domain.UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &domain.UpstreamError{StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON()}
	}
	return fmt.Errorf("calling deepseek: %w", err)
}
