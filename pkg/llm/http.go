package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/igorsilveira/tokenlens/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultMaxTokens = 1024
	maxResponseBytes = 1 << 20
)

// doLLMRequest posts body as JSON and decodes a 200 response into out.
func doLLMRequest(ctx context.Context, client *http.Client, providerName, model, url string, headers map[string]string, body, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", providerName),
		attribute.String("llm.model", model),
	)
	start := time.Now()
	status := "error"
	defer func() {
		if status != "ok" {
			span.SetStatus(codes.Error, status)
		}
		span.End()
		telemetry.Metrics.LLMRequestsTotal.WithLabelValues(providerName, model, status).Inc()
		telemetry.Metrics.LLMLatency.WithLabelValues(providerName, model).Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshaling request: %w", providerName, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", providerName, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: sending request: %w", providerName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", providerName, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: API returned %d: %s", providerName, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", providerName, err)
	}

	status = "ok"
	return nil
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}
