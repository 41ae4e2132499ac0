package sophos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "token", r.Form.Get("scope"))
		if r.Form.Get("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"error": "invalid_client"})
			return
		}
		writeJSON(w, map[string]any{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/whoami/v1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{
			"id":       "partner-1",
			"idType":   "partner",
			"apiHosts": map[string]string{"global": srv.URL},
		})
	})
	mux.HandleFunc("/partner/v1/tenants", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "partner-1", r.Header.Get("X-Partner-ID"))
		page := r.URL.Query().Get("page")
		writeJSON(w, map[string]any{
			"items": []map[string]string{{"id": "t" + page, "name": "Tenant " + page, "apiHost": srv.URL, "dataRegion": "eu01"}},
			"pages": map[string]int{"total": 2},
		})
	})
	mux.HandleFunc("/partner/v1/tenants/t9", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"id": "t9", "apiHost": srv.URL, "dataRegion": "us03"})
	})
	mux.HandleFunc("/endpoint/v1/endpoints", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "t1", r.Header.Get("X-Tenant-ID"))
		switch r.URL.Query().Get("pageFromKey") {
		case "":
			writeJSON(w, map[string]any{
				"items": []map[string]any{{
					"id": "e1", "hostname": "WS-01",
					"os":       map[string]any{"name": "Windows 11 Pro", "platform": "windows"},
					"health":   map[string]any{"overall": "good"},
					"packages": map[string]any{"protection": map[string]string{"status": "assigned"}},
				}},
				"pages": map[string]string{"nextKey": "k2"},
			})
		case "k2":
			writeJSON(w, map[string]any{
				"items": []map[string]any{{"id": "e2", "hostname": "SRV-01", "mdrManaged": true, "health": map[string]any{"overall": "bad"}}},
				"pages": map[string]string{},
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Flow(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c := NewClient(zap.NewNop(), Config{AuthURL: srv.URL + "/token", APIURL: srv.URL})

	tok, err := c.Token(ctx, Credentials{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.Value)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, time.Minute)

	who, err := c.WhoAmI(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "partner-1", who.ID)

	tenants, err := c.ListTenants(ctx, tok.Value, who)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "t1", tenants[0].ID)
	assert.Equal(t, "t2", tenants[1].ID)

	tenant, err := c.GetTenant(ctx, tok.Value, who, "t9")
	require.NoError(t, err)
	assert.Equal(t, "us03", tenant.DataRegion)

	endpoints, err := c.ListEndpoints(ctx, tok.Value, tenants[0])
	require.NoError(t, err)
	require.Len(t, endpoints, 2)
	assert.Equal(t, "Windows 11 Pro", endpoints[0].OS.Name)
	assert.Equal(t, "assigned", endpoints[0].Packages.Protection.Status)
	assert.True(t, endpoints[1].MDRManaged)
	assert.Equal(t, "bad", endpoints[1].Health.Overall)
	assert.Contains(t, string(endpoints[1].Raw), `"SRV-01"`)
}

func TestClient_TokenRejected(t *testing.T) {
	srv := newServer(t)
	c := NewClient(zap.NewNop(), Config{AuthURL: srv.URL + "/token", APIURL: srv.URL})
	_, err := c.Token(context.Background(), Credentials{ClientID: "id", ClientSecret: "wrong"})
	assert.ErrorContains(t, err, "invalid_client")
}

func TestClient_ListEndpointsRequiresHost(t *testing.T) {
	c := NewClient(zap.NewNop(), Config{})
	_, err := c.ListEndpoints(context.Background(), "tok", Tenant{ID: "t1"})
	assert.Error(t, err)
}
