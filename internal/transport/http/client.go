package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/scorer"
)

// ScorerClient is the client side of the scoring endpoint. It implements
// scorer.Scorer, so a machine cannot tell a remote scorer from a local one.
type ScorerClient struct {
	base string
	http *http.Client
}

func NewScorerClient(baseURL string) *ScorerClient {
	return &ScorerClient{
		base: baseURL,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ScorerClient) SubmitAnswer(ctx context.Context, req scorer.Request) (scorer.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return scorer.Response{}, fmt.Errorf("encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/answers:submit", bytes.NewReader(body))
	if err != nil {
		return scorer.Response{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return scorer.Response{}, fmt.Errorf("submitting answer: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var eb errorBody
		if err := json.NewDecoder(httpResp.Body).Decode(&eb); err != nil {
			return scorer.Response{}, fmt.Errorf("submit failed with status %d: %w", httpResp.StatusCode, domain.ErrInternal)
		}
		return scorer.Response{}, fmt.Errorf("submit rejected: %w", domain.ErrorFromCode(eb.Code))
	}

	var resp scorer.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return scorer.Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return resp, nil
}
