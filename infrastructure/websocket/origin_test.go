package websocket

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{name: "no configuration allows any origin", origins: nil, origin: "http://a.com", allowed: true},
		{name: "wildcard", origins: []string{"*"}, origin: "http://a.com", allowed: true},
		{name: "listed origin", origins: []string{"http://a.com"}, origin: "http://a.com", allowed: true},
		{name: "case and trailing slash", origins: []string{" HTTP://A.com/ "}, origin: "http://a.COM", allowed: true},
		{name: "unlisted origin", origins: []string{"http://a.com"}, origin: "http://b.com", allowed: false},
		{name: "missing header from non-browser client", origins: []string{"http://a.com"}, origin: "", allowed: true},
		{name: "garbage header", origins: []string{"http://a.com"}, origin: "::not an origin", allowed: false},
		{name: "invalid configuration falls back to any", origins: []string{"not-an-origin"}, origin: "http://b.com", allowed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.allowed, newOriginPolicy(tt.origins).check(r))
		})
	}
}

func TestState_String(t *testing.T) {
	req := require.New(t)
	req.Equal("connecting", StateConnecting.String())
	req.Equal("authenticating", StateAuthenticating.String())
	req.Equal("active", StateActive.String())
	req.Equal("draining", StateDraining.String())
	req.Equal("closed", StateClosed.String())
	req.Equal("unknown", State(42).String())
}
