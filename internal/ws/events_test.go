package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/shuleplus/backend/internal/domain"
	"github.com/shuleplus/backend/internal/service"
	"github.com/shuleplus/backend/pkg/payment"
)

type pendingGateway struct{}

func (pendingGateway) Initiate(ctx context.Context, req payment.InitiateRequest) (string, error) {
	return "order-1", nil
}

func (pendingGateway) Status(ctx context.Context, orderID string) (*payment.StatusResponse, error) {
	return &payment.StatusResponse{Status: "pending"}, nil
}

type nopSink struct{}

func (nopSink) ApplyConfirmation(ctx context.Context, orderID, userID, planID string, segment domain.Segment, res *payment.StatusResponse) *domain.SubscriptionRecord {
	return &domain.SubscriptionRecord{PlanID: planID}
}

func newEventsFixture(t *testing.T) (*service.Poller, *EventsHandler, *httptest.Server, string) {
	t.Helper()
	poller := service.NewPoller(context.Background(), pendingGateway{}, nopSink{}, service.PollConfig{
		MaxAttempts:  1000,
		Interval:     time.Minute,
		InitialDelay: time.Minute,
		Retention:    time.Minute,
	})
	authSvc := service.NewAuthService("test-secret", "", "", nil)
	h := NewEventsHandler(poller, authSvc)

	r := chi.NewRouter()
	r.Get("/payments/{orderId}/events", h.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	claims := jwt.MapClaims{
		"sub":   "u1",
		"email": "u1@example.com",
		"role":  "user",
		"level": "primary",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return poller, h, srv, token
}

func dialEvents(t *testing.T, srv *httptest.Server, orderID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/payments/" + orderID + "/events?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEventsHandler_SnapshotFirstThenEvents(t *testing.T) {
	poller, _, srv, token := newEventsFixture(t)
	poller.Start("order-1", "u1", "monthly", domain.SegmentPrimary)

	conn := dialEvents(t, srv, "order-1", token)

	var first service.PollEvent
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, service.PollAwaiting, first.State, "the current state must arrive before any broadcast")

	require.NoError(t, poller.Cancel("order-1"))
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "timed out waiting for cancelled event")
		var ev service.PollEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.State == service.PollCancelled {
			return
		}
	}
}

func TestEventsHandler_RejectsBadToken(t *testing.T) {
	poller, _, srv, _ := newEventsFixture(t)
	poller.Start("order-1", "u1", "monthly", domain.SegmentPrimary)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/payments/order-1/events?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, 401, resp.StatusCode)
}

func TestEventsHandler_UnknownOrder(t *testing.T) {
	_, _, srv, token := newEventsFixture(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/payments/ghost/events?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, 404, resp.StatusCode)
}

func TestEventsHandler_ConcurrentBroadcasts(t *testing.T) {
	poller, h, srv, token := newEventsFixture(t)
	poller.Start("order-1", "u1", "monthly", domain.SegmentPrimary)

	conn := dialEvents(t, srv, "order-1", token)

	var snapshot service.PollEvent
	require.NoError(t, conn.ReadJSON(&snapshot))

	// Events reach one connection from many goroutines at once: the poll
	// session's loop plus any handler calling cancel or retry. The write
	// path must serialize them instead of panicking.
	const emitters = 16
	const perEmitter = 25
	var wg sync.WaitGroup
	wg.Add(emitters)
	for i := 0; i < emitters; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perEmitter; j++ {
				h.broadcast(service.PollEvent{OrderID: "order-1", State: service.PollAwaiting, Attempt: j})
			}
		}()
	}

	received := 0
	for received < emitters*perEmitter {
		var ev service.PollEvent
		require.NoError(t, conn.ReadJSON(&ev))
		received++
	}
	wg.Wait()
}
