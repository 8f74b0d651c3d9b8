// Package apicall provides HTTP request action execution for workflow graphs.
package apicall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cascadehq/cascade/pkg/dispatch"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/template"
)

const defaultTimeout = 30 * time.Second

// Executor performs one HTTP request per dispatch. Failures are routed to the
// error branch rather than returned as errors, so the workflow can handle
// them; retrying is the retry scheduler's job, not the executor's.
type Executor struct {
	client *http.Client
}

func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Executor{client: client}
}

type nodeConfig struct {
	url     string
	method  string
	headers map[string]string
	body    string
	timeout time.Duration
}

func parseConfig(config map[string]any) (*nodeConfig, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	parsed := &nodeConfig{
		url:     url,
		method:  http.MethodGet,
		headers: make(map[string]string),
	}

	if method, ok := config["method"].(string); ok && method != "" {
		parsed.method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if value, ok := v.(string); ok {
				parsed.headers[k] = value
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		parsed.body = body
	}

	if timeout, ok := config["timeout"].(string); ok && timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", timeout, err)
		}

		parsed.timeout = d
	}

	return parsed, nil
}

// Execute renders the request templates against the execution context,
// performs the call, and returns the response on the main branch. Network
// failures and HTTP statuses >= 400 route to the error branch.
func (e *Executor) Execute(ctx context.Context, execCtx *execution.Context, node *models.WorkflowNode) (*dispatch.Result, error) {
	cfg, err := parseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("api_call node %s: %w", node.ID, err)
	}

	url, err := renderString(cfg.url, execCtx)
	if err != nil {
		return nil, fmt.Errorf("api_call node %s: url: %w", node.ID, err)
	}

	body := ""

	if cfg.body != "" {
		body, err = renderBody(cfg.body, execCtx)
		if err != nil {
			return nil, fmt.Errorf("api_call node %s: body: %w", node.ID, err)
		}
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("api_call node %s: %w", node.ID, err)
	}

	for key, value := range cfg.headers {
		rendered, err := renderString(value, execCtx)
		if err != nil {
			rendered = value
		}

		req.Header.Set(key, rendered)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return errorResult(url, 0, err.Error()), nil
	}

	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResult(url, resp.StatusCode, err.Error()), nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return errorResult(url, resp.StatusCode, string(respBody)), nil
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		output["json"] = jsonBody
	}

	return &dispatch.Result{Output: output, Branch: models.PortMain}, nil
}

func renderString(templateStr string, execCtx *execution.Context) (string, error) {
	rendered, err := template.RenderWithContext(templateStr, execCtx)
	if err != nil {
		return "", err
	}

	if value, ok := rendered.(string); ok {
		return value, nil
	}

	return fmt.Sprintf("%v", rendered), nil
}

// renderBody re-serializes templates that render to structured values, so a
// body template producing a JSON object stays valid JSON on the wire.
func renderBody(templateStr string, execCtx *execution.Context) (string, error) {
	rendered, err := template.RenderWithContext(templateStr, execCtx)
	if err != nil {
		return "", err
	}

	if value, ok := rendered.(string); ok {
		return value, nil
	}

	encoded, err := json.Marshal(rendered)
	if err != nil {
		return "", err
	}

	return string(encoded), nil
}

func errorResult(url string, statusCode int, message string) *dispatch.Result {
	return &dispatch.Result{
		Output: map[string]any{
			"url":         url,
			"status_code": statusCode,
			"error":       message,
		},
		Branch: models.PortError,
	}
}
