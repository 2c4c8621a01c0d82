package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpoint_Label(t *testing.T) {
	tests := []struct {
		name string
		ep   Endpoint
		want string
	}{
		{name: "explicit name", ep: Endpoint{Name: "primary", URL: "https://a.example/q"}, want: "primary"},
		{name: "host from url", ep: Endpoint{URL: "https://db.example.org/api/pg-meta/default/query"}, want: "db.example.org"},
		{name: "host with query", ep: Endpoint{URL: "http://localhost:8000?x=1"}, want: "localhost:8000"},
		{name: "no scheme", ep: Endpoint{URL: "proxy.local/query"}, want: "proxy.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ep.Label())
		})
	}
}

func TestEndpoint_HasBasicAuth(t *testing.T) {
	assert.False(t, Endpoint{URL: "x"}.HasBasicAuth())
	assert.True(t, Endpoint{Username: "u"}.HasBasicAuth())
}
