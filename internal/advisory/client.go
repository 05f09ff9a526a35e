package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pilltrack/pilltrack/internal/config"
	apperrors "github.com/pilltrack/pilltrack/internal/errors"
	"github.com/pilltrack/pilltrack/internal/metrics"
	"github.com/sony/gobreaker/v2"
)

// Severity grades one drug-drug interaction
type Severity string

const (
	SeverityMild     Severity = "Mild"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
	SeverityUnknown  Severity = "Unknown"
)

// Detail describes one interaction between two or more of the drugs
type Detail struct {
	Description      string   `json:"description"`
	Severity         Severity `json:"severity"`
	Management       string   `json:"management"`
	InteractingDrugs []string `json:"interactingDrugs"`
}

// Result is the structured advisory for one set of drugs
type Result struct {
	HasInteractions bool     `json:"hasInteractions"`
	Summary         string   `json:"summary"`
	Details         []Detail `json:"details,omitempty"`
}

// Client calls the remote interaction-advisory service. Repeated failures
// trip a circuit breaker so a flaky service degrades to "no data" quickly
// instead of stalling every refresh.
type Client struct {
	cfg     config.AdvisoryConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*Result]
}

// NewClient creates a new advisory client
func NewClient(cfg config.AdvisoryConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
			Name:        "advisory",
			MaxRequests: 1,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// generateContent request/response, trimmed to the fields we use

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Check asks the service about one ordered list of "{name} {dosage}" strings
func (c *Client) Check(ctx context.Context, drugs []string) (*Result, error) {
	res, err := c.breaker.Execute(func() (*Result, error) {
		return c.check(ctx, drugs)
	})
	metrics.RecordAdvisoryCall(err == nil)
	return res, err
}

func (c *Client) check(ctx context.Context, drugs []string) (*Result, error) {
	prompt := buildPrompt(drugs)

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrAdvisoryUnavailable.Code, "advisory request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, apperrors.Wrap(
			fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)),
			apperrors.ErrAdvisoryUnavailable.Code,
			"advisory request failed",
		)
	}

	var outer generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&outer); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrAdvisoryMalformed.Code, "failed to decode advisory response")
	}
	if len(outer.Candidates) == 0 || len(outer.Candidates[0].Content.Parts) == 0 {
		return nil, apperrors.ErrAdvisoryMalformed
	}

	result, err := parseResult(outer.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func buildPrompt(drugs []string) string {
	var sb strings.Builder
	sb.WriteString("Analyze potential interactions between these medications:\n")
	for _, d := range drugs {
		sb.WriteString("- " + d + "\n")
	}
	sb.WriteString(`Respond with JSON only: {"hasInteractions": bool, "summary": string, ` +
		`"details": [{"description": string, "severity": "Mild"|"Moderate"|"Severe"|"Unknown", ` +
		`"management": string, "interactingDrugs": [string]}]}`)
	return sb.String()
}

// parseResult tolerates the model wrapping its JSON in a markdown fence
func parseResult(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrAdvisoryMalformed.Code, "unparseable advisory payload")
	}

	for i, d := range result.Details {
		switch d.Severity {
		case SeverityMild, SeverityModerate, SeveritySevere:
		default:
			result.Details[i].Severity = SeverityUnknown
		}
	}

	return &result, nil
}
