package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const correlationIDHeader = "X-Correlation-ID"

// StatusError is returned when the proxy answers with an unexpected status
type StatusError struct {
	StatusCode    int
	CorrelationID string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("result proxy answered %d %s (correlation: %s)",
		e.StatusCode, http.StatusText(e.StatusCode), e.CorrelationID)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func jsonBody(payload any) (io.Reader, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return bytes.NewReader(body), nil
}

// do sends req and returns the body of a response with one of the accepted codes
func (c *Client) do(req *http.Request, accepted ...int) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("connection failed: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	for _, code := range accepted {
		if resp.StatusCode == code {
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
			}
			return resp.StatusCode, body, nil
		}
	}
	return resp.StatusCode, nil, StatusError{
		StatusCode:    resp.StatusCode,
		CorrelationID: resp.Header.Get(correlationIDHeader),
	}
}
