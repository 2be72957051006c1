//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Shrike fraud scoring engine.
//
// These tests verify the COMPLETE scoring pipeline:
//
//	Transaction → Rules/Model → Decision → Persistence → Events
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. TRANSACTION: A credit card payment described by the fraudTest.csv
//    column set (trans_num, cc_num, amt, merchant, category, geo, ...)
//
// 2. SCORER: One of three strategies selected by SHRIKE_MODE:
//   - "rules":    deterministic additive CEL rules (no model artifact)
//   - "single":   first classifier of the model artifact at full weight
//   - "ensemble": convex combination of all artifact classifiers
//
// 3. DECISION: A transaction is flagged when score > threshold
//    (strictly greater; the default threshold is 0.5)
//
// 4. IDEMPOTENCY: Each trans_num is stored at most once. Replaying a
//    transaction returns 409 and the stored verdict is unchanged.
//
// BUILT-IN RULES (active in "rules" mode out of the box):
//
// | Rule ID             | Triggers When                       | Weight |
// |---------------------|-------------------------------------|--------|
// | rule-high-amount    | amt > 5000                          | 0.4    |
// | rule-risky-category | Luxury Goods / Casino / Crypto      | 0.3    |
// | rule-geo-mismatch   | cardholder-merchant distance >100km | 0.2    |
// | rule-dense-city     | city_pop > 5,000,000                | 0.1    |
//
// NOTE: These tests clear the transaction store. Do not point them at
// a server holding data you care about.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("SHRIKE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Shrike's API contract)
// ============================================================================

// DetectResponse is what POST /detect_fraud returns
type DetectResponse struct {
	TransNum   string   `json:"trans_num"`
	FraudScore float64  `json:"fraud_score"`
	IsFraud    bool     `json:"is_fraud"`
	Scorer     string   `json:"scorer"`
	Reasons    []string `json:"reasons"`
}

// BatchResponse is what POST /transactions/batch returns
type BatchResponse struct {
	Total      int `json:"total"`
	Persisted  int `json:"persisted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Results    []struct {
		TransNum string `json:"trans_num"`
		Status   string `json:"status"`
	} `json:"results"`
}

// ListResponse is what GET /transactions returns
type ListResponse struct {
	Transactions []DetectResponse `json:"transactions"`
	Count        int              `json:"count"`
}

// ============================================================================
// HTTP Helpers
// ============================================================================

var httpClient = &http.Client{Timeout: 10 * time.Second}

func doRequest(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	cfg := getTestConfig()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, cfg.BaseURL+path, reqBody)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("request to %s failed (is the server running?): %v", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp, data
}

func detectFraud(t *testing.T, tx map[string]any) (*http.Response, DetectResponse) {
	t.Helper()
	resp, data := doRequest(t, http.MethodPost, "/detect_fraud", tx)
	var out DetectResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("failed to decode response %q: %v", data, err)
		}
	}
	return resp, out
}

func clearStore(t *testing.T) {
	t.Helper()
	resp, data := doRequest(t, http.MethodDelete, "/transactions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear failed: status=%d body=%s", resp.StatusCode, data)
	}
}

// sampleTx builds a transaction with unexceptional values. Override
// fields to trigger specific rules.
func sampleTx(transNum string) map[string]any {
	return map[string]any{
		"trans_num":  transNum,
		"cc_num":     "4111111111111111",
		"merchant":   "fraud_Kirlin and Sons",
		"category":   "grocery_pos",
		"amt":        42.50,
		"city":       "Columbia",
		"state":      "SC",
		"lat":        34.0007,
		"long":       -81.0348,
		"city_pop":   136632,
		"unix_time":  1371816865,
		"merch_lat":  34.0100,
		"merch_long": -81.0400,
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestHealthEndpoint(t *testing.T) {
	resp, data := doRequest(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status=%d body=%s", resp.StatusCode, data)
	}

	var health map[string]any
	if err := json.Unmarshal(data, &health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", health["status"])
	}
	if health["scorer"] == "" {
		t.Error("health response should name the active scorer")
	}
}

func TestDetectLowRiskTransaction(t *testing.T) {
	clearStore(t)

	resp, out := detectFraud(t, sampleTx("itest-low-001"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detect: status=%d", resp.StatusCode)
	}
	if out.IsFraud {
		t.Errorf("unexceptional transaction flagged: score=%f reasons=%v", out.FraudScore, out.Reasons)
	}
	if out.TransNum != "itest-low-001" {
		t.Errorf("trans_num = %q", out.TransNum)
	}
}

func TestDetectHighRiskTransaction(t *testing.T) {
	clearStore(t)

	// High amount + risky category pushes past any sane threshold.
	tx := sampleTx("itest-high-001")
	tx["amt"] = 9500.0
	tx["category"] = "Cryptocurrency Exchange"

	resp, out := detectFraud(t, tx)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detect: status=%d", resp.StatusCode)
	}
	if !out.IsFraud {
		t.Errorf("high-risk transaction passed: score=%f", out.FraudScore)
	}
	if out.FraudScore <= 0.5 {
		t.Errorf("score = %f, want > 0.5", out.FraudScore)
	}
}

func TestDuplicateReturns409(t *testing.T) {
	clearStore(t)

	tx := sampleTx("itest-dup-001")
	if resp, _ := detectFraud(t, tx); resp.StatusCode != http.StatusOK {
		t.Fatalf("first submission: status=%d", resp.StatusCode)
	}

	tx["amt"] = 9999.0 // changed payload must not overwrite the stored record
	resp, data := doRequest(t, http.MethodPost, "/detect_fraud", tx)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("replay: status=%d body=%s, want 409", resp.StatusCode, data)
	}
}

func TestValidationReturns400(t *testing.T) {
	tx := sampleTx("")
	delete(tx, "trans_num")

	resp, _ := doRequest(t, http.MethodPost, "/detect_fraud", tx)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing trans_num: status=%d, want 400", resp.StatusCode)
	}
}

func TestBatchThenListThenClear(t *testing.T) {
	clearStore(t)

	batch := []map[string]any{
		sampleTx("itest-batch-001"),
		sampleTx("itest-batch-002"),
		sampleTx("itest-batch-001"), // duplicate within the batch
	}

	resp, data := doRequest(t, http.MethodPost, "/transactions/batch", batch)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch: status=%d body=%s", resp.StatusCode, data)
	}

	var batchOut BatchResponse
	if err := json.Unmarshal(data, &batchOut); err != nil {
		t.Fatalf("failed to decode batch response: %v", err)
	}
	if batchOut.Persisted != 2 || batchOut.Duplicates != 1 {
		t.Errorf("batch = %+v, want 2 persisted / 1 duplicate", batchOut)
	}

	resp, data = doRequest(t, http.MethodGet, "/transactions?limit=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status=%d", resp.StatusCode)
	}
	var listOut ListResponse
	if err := json.Unmarshal(data, &listOut); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if listOut.Count != 2 {
		t.Errorf("count = %d, want 2", listOut.Count)
	}

	resp, data = doRequest(t, http.MethodDelete, "/transactions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear: status=%d", resp.StatusCode)
	}
	var cleared map[string]int
	if err := json.Unmarshal(data, &cleared); err != nil {
		t.Fatalf("failed to decode clear response: %v", err)
	}
	if cleared["removed"] != 2 {
		t.Errorf("removed = %d, want 2", cleared["removed"])
	}
}

func TestRuleLifecycle(t *testing.T) {
	ruleID := fmt.Sprintf("itest-night-owl-%d", time.Now().UnixNano())

	rule := map[string]any{
		"id":         ruleID,
		"name":       "Night owl",
		"expression": "hour >= 0 && hour < 5",
		"weight":     0.15,
		"reason":     "Transaction between midnight and 5am",
	}
	resp, data := doRequest(t, http.MethodPost, "/rules", rule)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create rule: status=%d body=%s", resp.StatusCode, data)
	}

	resp, data = doRequest(t, http.MethodGet, "/rules", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list rules: status=%d", resp.StatusCode)
	}
	if !bytes.Contains(data, []byte(ruleID)) {
		t.Errorf("created rule %s missing from rule list", ruleID)
	}
}

func TestInvalidRuleRejected(t *testing.T) {
	rule := map[string]any{
		"id":         "itest-broken",
		"name":       "Broken",
		"expression": "amt +", // does not compile
		"weight":     0.1,
	}
	resp, _ := doRequest(t, http.MethodPost, "/rules", rule)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("broken expression: status=%d, want 400", resp.StatusCode)
	}
}
