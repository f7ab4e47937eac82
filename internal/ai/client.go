package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"scamguard/internal/config"
	"scamguard/internal/domain/models"
	"scamguard/pkg/logger"
)

// Provider is the narrow interface the engine consumes. It isolates the
// model's non-determinism and latency so everything downstream stays
// deterministic and testable with a scripted stand-in.
type Provider interface {
	// Classify refines the risk assessment of one message.
	Classify(ctx context.Context, req *ClassifyRequest) (*ClassifyResult, error)

	// Summarize produces the nightly narrative digest.
	Summarize(ctx context.Context, req *SummaryRequest) (*SummaryResult, error)
}

// ClassifyRequest carries a message plus its prior detection signals.
type ClassifyRequest struct {
	MessageText string
	Category    *models.ScamCategory
	Signals     []models.DetectionSignal
}

// ClassifyResult is the model's refined assessment.
type ClassifyResult struct {
	IsScam          bool                `json:"is_scam"`
	Confidence      float64             `json:"confidence"`
	ScamType        models.ScamCategory `json:"scam_type"`
	ScoreAdjustment float64             `json:"score_adjustment"`
	Rationale       string              `json:"reasoning"`
	RiskIndicators  []string            `json:"risk_indicators"`

	// When the model proposes a pattern not covered by the current rules.
	NewPatternDetected bool   `json:"new_pattern_detected"`
	PatternRegex       string `json:"pattern_regex"`

	// ConfirmedOverride must be set for an adjustment to pull a CRITICAL
	// verdict below HIGH.
	ConfirmedOverride bool `json:"confirmed_override"`
}

// SummaryRequest carries one day's aggregate statistics.
type SummaryRequest struct {
	Date              string
	TotalScams        int
	ByRiskLevel       map[string]int
	FalsePositiveRate *float64
}

// SummaryResult is the generated daily digest.
type SummaryResult struct {
	Narrative string
}

// Client talks to the Claude messages API.
type Client struct {
	httpClient *http.Client
	cfg        config.AIConfig
	logger     *logger.Logger
}

// NewClient creates an AI provider backed by the Claude API.
func NewClient(cfg config.AIConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     log.WithComponent("ai-client"),
	}
}

// Classify implements Provider.
func (c *Client) Classify(ctx context.Context, req *ClassifyRequest) (*ClassifyResult, error) {
	content, err := c.complete(ctx, buildClassifyPrompt(req), c.cfg.MaxTokens)
	if err != nil {
		return nil, err
	}

	var result ClassifyResult
	if err := json.Unmarshal(extractJSON(content), &result); err != nil {
		return nil, fmt.Errorf("malformed classification response: %w", err)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("classification confidence %.2f out of [0,1]", result.Confidence)
	}
	return &result, nil
}

// Summarize implements Provider.
func (c *Client) Summarize(ctx context.Context, req *SummaryRequest) (*SummaryResult, error) {
	content, err := c.complete(ctx, buildSummaryPrompt(req), 512)
	if err != nil {
		return nil, err
	}
	return &SummaryResult{Narrative: strings.TrimSpace(content)}, nil
}

// complete sends one user prompt to the messages API and returns the
// concatenated text content.
func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	reqBody := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrQuotaExhausted
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI API error %d: %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", err
	}

	var content strings.Builder
	for _, part := range apiResp.Content {
		if part.Type == "text" {
			content.WriteString(part.Text)
		}
	}
	return content.String(), nil
}

func buildClassifyPrompt(req *ClassifyRequest) string {
	var sb strings.Builder
	sb.WriteString("Analyze this SMS message for scam indicators.\n\n")
	sb.WriteString(fmt.Sprintf("Message: %q\n", req.MessageText))
	if req.Category != nil {
		sb.WriteString(fmt.Sprintf("Current Detection Category: %s\n", *req.Category))
	} else {
		sb.WriteString("Current Detection Category: None\n")
	}
	if len(req.Signals) > 0 {
		sb.WriteString("Prior detection signals:\n")
		for _, s := range req.Signals {
			sb.WriteString(fmt.Sprintf("- %s (weight %.2f): %s\n", s.Detector, s.Weight, s.Evidence))
		}
	}
	sb.WriteString(`
Provide a JSON response with:
1. is_scam: boolean - is this likely a scam?
2. confidence: float (0-1) - confidence in the assessment
3. scam_type: string - one of phishing, financial_fraud, social_engineering, authentication_theft, package_delivery, other
4. score_adjustment: float (-100 to 100) - adjustment to the current 0-100 risk score
5. risk_indicators: array - specific red flags found
6. new_pattern_detected: boolean - is this a pattern not covered by the signals above?
7. pattern_regex: string - if new pattern, a suggested regex (else null)
8. reasoning: string - brief explanation

Respond with valid JSON only.`)
	return sb.String()
}

func buildSummaryPrompt(req *SummaryRequest) string {
	var sb strings.Builder
	sb.WriteString("Generate a concise daily summary report for scam detection.\n\n")
	sb.WriteString("Statistics:\n")
	sb.WriteString(fmt.Sprintf("- Report date: %s\n", req.Date))
	sb.WriteString(fmt.Sprintf("- Total scams detected: %d\n", req.TotalScams))
	sb.WriteString(fmt.Sprintf("- By risk level: %v\n", req.ByRiskLevel))
	if req.FalsePositiveRate != nil {
		sb.WriteString(fmt.Sprintf("- False positive rate: %.2f%%\n", *req.FalsePositiveRate))
	} else {
		sb.WriteString("- False positive rate: no reviewed flags yet\n")
	}
	sb.WriteString(`
Provide:
1. Key findings (2-3 bullet points)
2. Notable trends
3. Recommended actions (if any)

Keep it brief and actionable.`)
	return sb.String()
}

// extractJSON pulls the first JSON object out of a model response, tolerating
// markdown code fences and surrounding prose.
func extractJSON(content string) []byte {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return []byte(content)
}
