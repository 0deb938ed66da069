package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// SMSTransport sends one SMS and returns a delivery id.
type SMSTransport interface {
	Send(to, body string) (string, error)
}

// GatewaySMS posts messages to an HTTP SMS gateway.
type GatewaySMS struct {
	URL     string
	APIKey  string
	From    string
	Timeout time.Duration
}

func NewGatewaySMS(url, apiKey, from string, timeout time.Duration) *GatewaySMS {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GatewaySMS{
		URL:     url,
		APIKey:  apiKey,
		From:    from,
		Timeout: timeout,
	}
}

type smsPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (g *GatewaySMS) Send(to, body string) (string, error) {
	if g.URL == "" {
		return "", fmt.Errorf("SMS gateway not configured")
	}

	payload, err := json.Marshal(smsPayload{From: g.From, To: to, Body: body})
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}
	req.SetBody(payload)

	if err := fasthttp.DoTimeout(req, resp, g.Timeout); err != nil {
		return "", fmt.Errorf("error sending SMS: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("SMS gateway returned status %d", resp.StatusCode())
	}

	var result smsResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("invalid SMS gateway response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("SMS gateway error: %s", result.Error)
	}

	return result.MessageID, nil
}
