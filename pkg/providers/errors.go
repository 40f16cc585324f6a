package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/snow-ghost/llmbench/core"
)

// HTTPError is a non-success response from a provider API that is not
// spoken through go-openai.
type HTTPError struct {
	StatusCode int
	Body       string // truncated, kept for classification only
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d", e.StatusCode)
}

const maxErrorBody = 2048

func newHTTPError(resp *http.Response) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
}

// Classify maps a provider transport error onto a typed core error.
// Errors that are already typed pass through, as do context cancellation
// and deadline errors, which the caller interprets.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := core.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		detail := fmt.Sprintf("%v %s %s", apiErr.Code, apiErr.Type, apiErr.Message)
		return classifyStatus(apiErr.HTTPStatusCode, detail, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, string(reqErr.Body), err)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode, httpErr.Body, err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return core.Wrap(core.ETransientNetwork, "connection closed by provider", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return core.Wrap(core.ETransientNetwork, "network error talking to provider", err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return core.Wrap(core.ETransientNetwork, "malformed provider response", err)
	}

	return core.Wrap(core.EProviderUnknown, "provider call failed", err)
}

func classifyStatus(status int, detail string, err error) error {
	quota := strings.Contains(strings.ToLower(detail), "insufficient_quota")

	switch {
	case status == http.StatusUnauthorized:
		return core.Wrap(core.EAuth, "provider rejected the API key", err)
	case status == http.StatusPaymentRequired || status == http.StatusForbidden || quota:
		return core.Wrap(core.EQuota, "provider quota or credits exhausted", err)
	case status == http.StatusTooManyRequests:
		return core.Wrap(core.ERateLimited, "provider rate limit reached", err)
	case status == http.StatusNotFound:
		return core.Wrap(core.EModelNotFound, "model not found at provider", err)
	case status == http.StatusRequestTimeout || status >= 500:
		return core.Wrap(core.ETransientNetwork, fmt.Sprintf("provider unavailable (HTTP %d)", status), err)
	default:
		return core.Wrap(core.EProviderUnknown, fmt.Sprintf("provider call failed (HTTP %d)", status), err)
	}
}

// emptyResponse explains why a completion carried no text.
func emptyResponse(finishReason string) error {
	switch finishReason {
	case "length", "max_tokens":
		return core.New(core.EEmptyResponse, "model hit max_tokens before producing any output")
	case "content_filter":
		return core.New(core.EEmptyResponse, "response blocked by the provider's content filter")
	default:
		return core.New(core.EEmptyResponse, "model returned an empty response")
	}
}
