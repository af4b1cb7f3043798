package hcaptcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultVerifyURL = "https://hcaptcha.com/siteverify"

var ErrEmptyToken = errors.New("hCaptcha token is empty")

type Response struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verifier checks captcha responses against the hCaptcha siteverify API.
type Verifier struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
}

// NewVerifier returns nil when no secret is configured; callers treat a
// nil verifier as "captcha disabled".
func NewVerifier(secret string) *Verifier {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	return &Verifier{
		secret:     secret,
		verifyURL:  DefaultVerifyURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithVerifyURL points the verifier at another endpoint.
func (v *Verifier) WithVerifyURL(u string) *Verifier {
	v.verifyURL = u
	return v
}

func (v *Verifier) Verify(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	formData := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to hCaptcha API: %w", err)
	}
	defer resp.Body.Close()

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode hCaptcha API response: %w", err)
	}

	if !response.Success {
		errorMsg := "hCaptcha validation failed"
		if len(response.ErrorCodes) > 0 {
			errorMsg = errorMsg + ": " + strings.Join(response.ErrorCodes, ", ")
		}
		return errors.New(errorMsg)
	}

	return nil
}
