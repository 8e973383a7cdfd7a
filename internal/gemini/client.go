package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lansoscan/lansoscan-go/internal/errors"
	"github.com/lansoscan/lansoscan-go/internal/logging"
	obsmetrics "github.com/lansoscan/lansoscan-go/internal/observability/metrics"
)

// Package-level logger specific to the gemini service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	// Define log file path relative to working directory
	logFilePath := filepath.Join("logs", "gemini.log")
	initialLevel := slog.LevelDebug
	serviceLevelVar.Set(initialLevel)

	// Initialize the service-specific file logger
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "gemini", serviceLevelVar)
	if err != nil {
		// Fallback: Log error to standard log and disable service logging
		log.Printf("FATAL: Failed to initialize gemini file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "gemini")
		closeLogger = func() error { return nil } // No-op closer
	}
}

// Client provides methods for interacting with the Gemini API
type Client struct {
	config      Config
	httpClient  *http.Client
	cache       *cache.Cache
	rateLimiter *time.Ticker
	mu          sync.Mutex
	lastRequest time.Time
	debug       bool
	promMetrics *obsmetrics.GeminiMetrics

	// Metrics
	metrics struct {
		apiCalls      int64
		cacheHits     int64
		cacheMisses   int64
		apiErrors     int64
		totalDuration time.Duration
		mu            sync.RWMutex
	}
}

// NewClient creates a new Gemini API client
func NewClient(config Config, debug bool) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("Gemini API key is required").
			Category(errors.CategoryConfiguration).
			Component("gemini").
			Build()
	}

	// Use defaults for missing config values
	defaults := DefaultConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.RateLimitMS == 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = defaults.MaxOutputTokens
	}
	if config.SafetyThreshold == "" {
		config.SafetyThreshold = defaults.SafetyThreshold
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache:       cache.New(config.CacheTTL, config.CacheTTL*2),
		rateLimiter: time.NewTicker(time.Duration(config.RateLimitMS) * time.Millisecond),
		debug:       debug,
	}

	logger.Info("Gemini client initialized",
		"base_url", config.BaseURL,
		"model", config.Model,
		"cache_ttl", config.CacheTTL,
		"rate_limit_ms", config.RateLimitMS,
		"debug", debug,
		"api_key_configured", config.APIKey != "")

	return client, nil
}

// Close cleans up client resources
func (c *Client) Close() {
	c.rateLimiter.Stop()
	logger.Info("Closing Gemini client")

	if closeLogger != nil {
		logger.Debug("Closing Gemini service log file")
		if err := closeLogger(); err != nil {
			// Use standard log since our logger might be closing
			log.Printf("Error closing Gemini logger: %v", err)
		}
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

// SetMetrics attaches Prometheus collectors to the client. Safe to leave
// unset, metrics recording is skipped when nil.
func (c *Client) SetMetrics(m *obsmetrics.GeminiMetrics) {
	c.promMetrics = m
}

// AnalyzeImage sends a prompt together with an inline base64 image to the
// model and returns the first candidate's text. Responses are cached keyed
// by the image content and prompt so repeated scans of the same photograph
// do not spend quota.
func (c *Client) AnalyzeImage(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error) {
	if len(imageData) == 0 {
		return "", errors.Newf("image data must not be empty").
			Category(errors.CategoryValidation).
			Component("gemini").
			Build()
	}

	cacheKey := c.cacheKey(prompt, imageData)

	// Check cache first
	if cached, found := c.cache.Get(cacheKey); found {
		if text, ok := cached.(string); ok {
			c.metrics.mu.Lock()
			c.metrics.cacheHits++
			c.metrics.mu.Unlock()
			if c.promMetrics != nil {
				c.promMetrics.RecordCacheHit()
			}

			logger.Debug("Gemini response cache hit", "cache_key", cacheKey)
			return text, nil
		}
	}

	// Cache miss
	c.metrics.mu.Lock()
	c.metrics.cacheMisses++
	c.metrics.mu.Unlock()
	if c.promMetrics != nil {
		c.promMetrics.RecordCacheMiss()
	}

	// Apply timeout to API request
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	request := c.buildRequest(prompt, imageData, mimeType)

	var response GenerateContentResponse
	if err := c.doRequest(reqCtx, request, &response); err != nil {
		return "", err
	}

	text, err := c.extractText(&response)
	if err != nil {
		return "", err
	}

	c.cache.Set(cacheKey, text, cache.DefaultExpiration)

	logger.Debug("Gemini response cached",
		"cache_key", cacheKey,
		"response_length", len(text))

	return text, nil
}

// buildRequest assembles the generateContent request body.
func (c *Client) buildRequest(prompt string, imageData []byte, mimeType string) *GenerateContentRequest {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	safetySettings := make([]SafetySetting, 0, len(harmCategories))
	for _, category := range harmCategories {
		safetySettings = append(safetySettings, SafetySetting{
			Category:  category,
			Threshold: c.config.SafetyThreshold,
		})
	}

	return &GenerateContentRequest{
		Contents: []Content{
			{
				Parts: []Part{
					{Text: prompt},
					{InlineData: &InlineData{
						MIMEType: mimeType,
						Data:     base64.StdEncoding.EncodeToString(imageData),
					}},
				},
			},
		},
		GenerationConfig: GenerationConfig{
			Temperature:      c.config.Temperature,
			TopK:             c.config.TopK,
			TopP:             c.config.TopP,
			MaxOutputTokens:  c.config.MaxOutputTokens,
			ResponseMIMEType: "application/json",
		},
		SafetySettings: safetySettings,
	}
}

// extractText pulls the candidate text out of a response, surfacing blocked
// or empty completions as model-response errors.
func (c *Client) extractText(response *GenerateContentResponse) (string, error) {
	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		if c.promMetrics != nil {
			c.promMetrics.RecordBlockedPrompt()
		}
		return "", errors.Newf("prompt blocked by safety filter: %s", response.PromptFeedback.BlockReason).
			Category(errors.CategoryModelResponse).
			Context("block_reason", response.PromptFeedback.BlockReason).
			Component("gemini").
			Build()
	}

	text := response.Text()
	if text == "" {
		return "", errors.Newf("model returned no candidate text").
			Category(errors.CategoryModelResponse).
			Context("candidates", len(response.Candidates)).
			Component("gemini").
			Build()
	}

	return text, nil
}

// doRequest performs an HTTP request with rate limiting and auth
func (c *Client) doRequest(ctx context.Context, request *GenerateContentRequest, result *GenerateContentResponse) error {
	// Rate limiting
	c.mu.Lock()
	select {
	case <-c.rateLimiter.C:
	case <-ctx.Done():
		c.mu.Unlock()
		return errors.New(ctx.Err()).
			Category(errors.CategoryCancellation).
			Component("gemini").
			Build()
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	start := time.Now()

	// Track API call
	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.BaseURL, c.config.Model)

	body, err := json.Marshal(request)
	if err != nil {
		return errors.Newf("failed to encode request body: %w", err).
			Category(errors.CategoryValidation).
			Component("gemini").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.countError()
		return errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Component("gemini").
			Build()
	}

	// The API key travels in a header so it never appears in logged URLs
	req.Header.Set("x-goog-api-key", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	if c.debug {
		logger.Debug("Gemini API request",
			"url", url,
			"request_size", len(body),
			"has_api_key", c.config.APIKey != "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countError()

		logger.Error("Gemini API request failed",
			"error", err,
			"url", url)
		return errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			NetworkContext(url, c.config.Timeout).
			Component("gemini").
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			// Log error but don't propagate it
			_ = err
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countError()
		logger.Error("Failed to read response body",
			"error", err,
			"url", url,
			"status_code", resp.StatusCode)
		return errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Component("gemini").
			Build()
	}

	// Check for errors
	if resp.StatusCode >= 400 {
		c.countError()
		return c.mapAPIError(resp.StatusCode, bodyBytes, url)
	}

	// Parse successful response
	if err := json.Unmarshal(bodyBytes, result); err != nil {
		responsePreview := string(bodyBytes)
		if len(responsePreview) > 500 {
			responsePreview = responsePreview[:500] + "..."
		}

		logger.Error("Failed to parse Gemini API response",
			"error", err,
			"response_size", len(bodyBytes),
			"response_preview", responsePreview)
		return errors.Newf("failed to parse response: %w", err).
			Category(errors.CategoryResponseParsing).
			Context("response_size", len(bodyBytes)).
			Component("gemini").
			Build()
	}

	duration := time.Since(start)

	if c.debug {
		logger.Debug("Gemini API response",
			"status_code", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"response_size", len(bodyBytes))
	} else {
		logger.Info("Gemini API request successful",
			"duration_ms", duration.Milliseconds())
	}

	// Track successful API call duration
	c.metrics.mu.Lock()
	c.metrics.totalDuration += duration
	c.metrics.mu.Unlock()

	if c.promMetrics != nil {
		c.promMetrics.RecordAPICall(obsmetrics.StatusSuccess, duration.Seconds())
		if result.UsageMetadata != nil {
			c.promMetrics.RecordTokens(result.UsageMetadata.PromptTokenCount, result.UsageMetadata.CandidatesTokenCount)
		}
	}

	return nil
}

// mapAPIError converts an error response into a categorized error.
func (c *Client) mapAPIError(statusCode int, body []byte, url string) error {
	var apiErr APIError
	message := string(body)
	status := ""
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
		status = apiErr.Error.Status
	}

	category := categorizeStatus(statusCode, status, message)

	// Authentication failures get a dedicated log entry pointing at the config
	if category == errors.CategoryConfiguration {
		logger.Error("Gemini API authentication failed",
			"status_code", statusCode,
			"error_status", status,
			"has_api_key", c.config.APIKey != "",
			"message", "Check your Gemini API key in the configuration")
	} else {
		logger.Warn("Gemini API error response",
			"status_code", statusCode,
			"error_status", status,
			"error_message", message)
	}

	return errors.Newf("Gemini API error (status %d): %s", statusCode, message).
		Category(category).
		Context("status_code", statusCode).
		Context("error_status", status).
		Component("gemini").
		Build()
}

// categorizeStatus maps an HTTP status plus the Google error status string
// to an error category.
func categorizeStatus(statusCode int, status, message string) errors.ErrorCategory {
	lowerMessage := strings.ToLower(message)

	switch {
	case statusCode == 429 || status == "RESOURCE_EXHAUSTED":
		if strings.Contains(lowerMessage, "quota") {
			return errors.CategoryQuota
		}
		return errors.CategoryLimit
	case statusCode == 401 || statusCode == 403,
		status == "UNAUTHENTICATED", status == "PERMISSION_DENIED":
		return errors.CategoryConfiguration
	case statusCode == 400:
		if strings.Contains(lowerMessage, "api key") {
			return errors.CategoryConfiguration
		}
		return errors.CategoryValidation
	case statusCode == 404:
		return errors.CategoryNotFound
	default:
		return errors.CategoryNetwork
	}
}

// cacheKey derives the response cache key from the prompt and image content.
func (c *Client) cacheKey(prompt string, imageData []byte) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write(imageData)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) countError() {
	c.metrics.mu.Lock()
	c.metrics.apiErrors++
	c.metrics.mu.Unlock()
	if c.promMetrics != nil {
		c.promMetrics.RecordAPIError()
	}
}

// ClearCache clears all cached responses
func (c *Client) ClearCache() {
	c.cache.Flush()
	logger.Info("Gemini response cache cleared")
}

// Metrics represents Gemini client performance metrics
type Metrics struct {
	APICalls      int64         `json:"api_calls"`
	CacheHits     int64         `json:"cache_hits"`
	CacheMisses   int64         `json:"cache_misses"`
	APIErrors     int64         `json:"api_errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()

	metrics := Metrics{
		APICalls:      c.metrics.apiCalls,
		CacheHits:     c.metrics.cacheHits,
		CacheMisses:   c.metrics.cacheMisses,
		APIErrors:     c.metrics.apiErrors,
		TotalDuration: c.metrics.totalDuration,
	}

	if metrics.APICalls > 0 {
		metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.APICalls)
	}

	return metrics
}
