package square

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rcourtman/paybridge/internal/config"
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *config.Processor) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	proc, err := config.NewProcessor(map[string]string{
		config.EnvAccessToken:        "live-token",
		config.EnvSandboxAccessToken: "sandbox-token",
		config.EnvLocationID:         "LOC",
		config.EnvAPIBaseURL:         srv.URL,
	})
	require.NoError(t, err)
	return NewClient(proc, WithHTTPClient(srv.Client())), proc
}

func TestRequestSendsHeaders(t *testing.T) {
	var got http.Header
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"customers":[]}`))
	})

	raw, err := client.Request(context.Background(), http.MethodGet, "/v2/customers", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"customers":[]}`, string(raw))
	assert.Equal(t, "Bearer live-token", got.Get("Authorization"))
	assert.Equal(t, config.DefaultAPIVersion, got.Get("Square-Version"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
}

func TestRequestRereadsTokenEachCall(t *testing.T) {
	var tokens []string
	client, proc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.Request(context.Background(), http.MethodGet, "/v2/customers", nil)
	require.NoError(t, err)
	proc.SetTestMode(true)
	_, err = client.Request(context.Background(), http.MethodGet, "/v2/customers", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer live-token", "Bearer sandbox-token"}, tokens)
}

func TestRequestProtocolErrorCarriesDetails(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED","detail":"declined"}]}`))
	})

	_, err := client.Request(context.Background(), http.MethodPost, "/v2/payments", map[string]string{"a": "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerrors.ErrProtocol))

	var gwErr *internalerrors.Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusPaymentRequired, gwErr.StatusCode)
	require.Len(t, gwErr.Details, 1)
	assert.Equal(t, "CARD_DECLINED", gwErr.Details[0].Code)
	assert.Contains(t, err.Error(), "CARD_DECLINED: declined")
}

func TestRequestDecodeErrors(t *testing.T) {
	for name, body := range map[string]string{"empty": "", "html": "<html>oops</html>"} {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			_, err := client.Request(context.Background(), http.MethodGet, "/v2/customers", nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, internalerrors.ErrDecode))
		})
	}
}

func TestRequestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	proc, err := config.NewProcessor(map[string]string{
		config.EnvAccessToken: "tok",
		config.EnvAPIBaseURL:  base,
	})
	require.NoError(t, err)

	_, err = NewClient(proc, WithHTTPClient(&http.Client{})).Request(context.Background(), http.MethodGet, "/v2/customers", nil)
	require.Error(t, err)
	assert.Equal(t, internalerrors.ErrorTypeTransport, internalerrors.TypeOf(err))
}

func TestRequestWithoutTokenIsConfigurationError(t *testing.T) {
	proc, err := config.NewProcessor(nil)
	require.NoError(t, err)

	_, err = NewClient(proc).Request(context.Background(), http.MethodGet, "/v2/customers", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerrors.ErrConfiguration))
}

func TestSubscriptionEndpoints(t *testing.T) {
	var updateBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/subscriptions/sub-1":
			_, _ = w.Write([]byte(`{"subscription":{"id":"sub-1","status":"ACTIVE","version":3}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/v2/subscriptions/sub-1":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&updateBody))
			_, _ = w.Write([]byte(`{"subscription":{"id":"sub-1","status":"ACTIVE","version":4}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v2/subscriptions/sub-1/cancel":
			_, _ = w.Write([]byte(`{"subscription":{"id":"sub-1","status":"CANCELED","version":5}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[{"code":"NOT_FOUND"}]}`))
		}
	})
	ctx := context.Background()

	sub, err := client.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), sub.Version)

	sub, err = client.UpdateSubscription(ctx, "sub-1", SubscriptionUpdate{Version: 3, PriceOverrideMoney: &Money{Amount: 2500, Currency: "USD"}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), sub.Version)
	inner := updateBody["subscription"].(map[string]any)
	assert.EqualValues(t, 3, inner["version"])
	assert.EqualValues(t, 2500, inner["price_override_money"].(map[string]any)["amount"])

	sub, err = client.CancelSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "CANCELED", sub.Status)

	_, err = client.GetSubscription(ctx, "missing")
	assert.True(t, errors.Is(err, internalerrors.ErrProtocol))
}

func TestSearchCustomersSendsExactFilter(t *testing.T) {
	var method, path string
	var body map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body = nil
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"customers":[{"id":"C1","reference_id":"42"}]}`))
	})

	customers, err := client.SearchCustomersByEmail(context.Background(), "a+b@example.org")
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "C1", customers[0].ID)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/v2/customers/search", path)
	assert.Equal(t, map[string]any{
		"query": map[string]any{"filter": map[string]any{"email_address": map[string]any{"exact": "a+b@example.org"}}},
		"limit": float64(searchLimit),
	}, body)

	_, err = client.SearchCustomersByReference(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"query": map[string]any{"filter": map[string]any{"reference_id": map[string]any{"exact": "42"}}},
		"limit": float64(searchLimit),
	}, body)
}
