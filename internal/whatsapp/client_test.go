package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:       srv.URL,
		Version:       "v21.0",
		AccessToken:   "token",
		PhoneNumberID: "12345",
	}, nil, nil)
	return c, srv
}

func TestSendTextReturnsMessageID(t *testing.T) {
	var gotBody map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.ABC"}]}`))
	})

	id, err := c.SendText(context.Background(), "966500000001", "hello")
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", id)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "966500000001", gotBody["to"])
	assert.Equal(t, "text", gotBody["type"])
}

func TestSendRetriesOnServerError(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.RETRY"}]}`))
	})

	id, err := c.SendText(context.Background(), "966500000001", "hello")
	require.NoError(t, err)
	assert.Equal(t, "wamid.RETRY", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSendSurfacesAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid recipient","type":"OAuthException","code":131026}}`))
	})

	_, err := c.SendText(context.Background(), "966500000001", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "131026")
}

func TestSendTemplateShape(t *testing.T) {
	var gotBody map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.TPL"}]}`))
	})

	_, err := c.SendTemplate(context.Background(), "966500000001", "appointment_reminder", "ar", []string{"11:00 AM"})
	require.NoError(t, err)

	tpl := gotBody["template"].(map[string]any)
	assert.Equal(t, "appointment_reminder", tpl["name"])
	assert.Equal(t, "ar", tpl["language"].(map[string]any)["code"])
	components := tpl["components"].([]any)
	require.Len(t, components, 1)
	params := components[0].(map[string]any)["parameters"].([]any)
	require.Len(t, params, 1)
	assert.Equal(t, "11:00 AM", params[0].(map[string]any)["text"])
}

func TestSendLocationShape(t *testing.T) {
	var gotBody map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.LOC"}]}`))
	})

	_, err := c.SendLocation(context.Background(), "966500000001", 24.7136, 46.6753, "Clinic", "Riyadh")
	require.NoError(t, err)

	loc := gotBody["location"].(map[string]any)
	assert.Equal(t, "Clinic", loc["name"])
	assert.InDelta(t, 24.7136, loc["latitude"].(float64), 1e-9)
}
