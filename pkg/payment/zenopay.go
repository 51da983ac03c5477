package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
)

// ZenoPayClient talks to a ZenoPay-style mobile-money gateway over HTTP.
// All calls go through a circuit breaker so a flapping gateway fails fast
// instead of tying up poll ticks in connection timeouts.
type ZenoPayClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

// NewZenoPayClient creates a gateway client for the given base URL and API key.
func NewZenoPayClient(baseURL, apiKey string) *ZenoPayClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("x-api-key", apiKey)

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &ZenoPayClient{http: client, breaker: breaker}
}

// Initiate submits a payment request and returns the gateway order id.
func (c *ZenoPayClient) Initiate(ctx context.Context, req InitiateRequest) (string, error) {
	var out InitiateResponse
	resp, err := c.do(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			Post("/payments")
	})
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	if !out.Success || out.OrderID == "" {
		return "", fmt.Errorf("gateway rejected payment: %s", out.Message)
	}
	return out.OrderID, nil
}

// Status queries the completion state of an order.
func (c *ZenoPayClient) Status(ctx context.Context, orderID string) (*StatusResponse, error) {
	var out StatusResponse
	resp, err := c.do(func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetResult(&out).
			Get("/payments/" + orderID + "/status")
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	return &out, nil
}

func (c *ZenoPayClient) do(call func() (*resty.Response, error)) (*resty.Response, error) {
	resp, err := c.breaker.Execute(call)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("gateway circuit open: %w", err)
		}
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	return resp, nil
}
