package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockGateway simulates the gateway for local development: every order
// confirms after a fixed number of status queries, flagged as a demo
// transaction.
type MockGateway struct {
	// ConfirmAfter is how many status queries an order needs before it
	// reports completion.
	ConfirmAfter int

	mu    sync.Mutex
	polls map[string]int
}

// NewMockGateway creates a mock gateway confirming on the third status query.
func NewMockGateway() *MockGateway {
	return &MockGateway{ConfirmAfter: 3, polls: make(map[string]int)}
}

func (g *MockGateway) Initiate(ctx context.Context, req InitiateRequest) (string, error) {
	orderID := uuid.New().String()
	g.mu.Lock()
	g.polls[orderID] = 0
	g.mu.Unlock()
	return orderID, nil
}

func (g *MockGateway) Status(ctx context.Context, orderID string) (*StatusResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	count, known := g.polls[orderID]
	if !known {
		return nil, &APIError{StatusCode: 404, Message: "order not found"}
	}
	g.polls[orderID] = count + 1

	if count+1 < g.ConfirmAfter {
		return &StatusResponse{Status: "pending"}, nil
	}
	yes := true
	return &StatusResponse{Success: &yes, Demo: &yes, Status: "completed"}, nil
}
