// Package types contains shared type definitions used across multiple packages
package types

import "strings"

// Endpoint describes one external HTTP data source
type Endpoint struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"-" yaml:"password,omitempty"`
	APIKey   string `json:"-" yaml:"api_key,omitempty"`
}

// Label returns Name, or the URL host when no name is set
func (e Endpoint) Label() string {
	if e.Name != "" {
		return e.Name
	}
	host := e.URL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?"); i >= 0 {
		host = host[:i]
	}
	return host
}

// HasBasicAuth reports whether the endpoint carries basic auth credentials
func (e Endpoint) HasBasicAuth() bool {
	return e.Username != "" || e.Password != ""
}
