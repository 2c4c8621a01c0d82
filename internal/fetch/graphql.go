package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// GraphQLClient posts queries to a single GraphQL endpoint
type GraphQLClient struct {
	url        string
	httpClient *http.Client
}

// NewGraphQLClient creates a client for url
func NewGraphQLClient(url string, opts ...Option) *GraphQLClient {
	o := buildOptions(opts)
	return &GraphQLClient{url: url, httpClient: o.httpClient}
}

// Query runs query with variables and decodes the data member into out.
// A non-empty errors array is returned as an error even when data is present.
func (c *GraphQLClient) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	req, err := newJSONRequest(ctx, c.url, graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := doJSON(c.httpClient, req, &resp); err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return errors.New("graphql: empty data")
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("error decoding graphql data: %w", err)
	}
	return nil
}
