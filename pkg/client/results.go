package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/buildinfo"
)

// GetChallenge fetches an EIP-712 login challenge for chainID
func (c *Client) GetChallenge(ctx context.Context, chainID int64) (apitypes.TypedData, error) {
	query := url.Values{"chainId": {strconv.FormatInt(chainID, 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/results/challenge", query), nil)
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("creating request: %w", err)
	}
	_, body, err := c.do(req, http.StatusOK)
	if err != nil {
		return apitypes.TypedData{}, err
	}
	var typedData apitypes.TypedData
	if err := json.Unmarshal(body, &typedData); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return typedData, nil
}

// Login redeems a signed challenge, given as hash_signature_address, for a token
func (c *Client) Login(ctx context.Context, chainID int64, loginToken string) (string, error) {
	query := url.Values{"chainId": {strconv.FormatInt(chainID, 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/results/login", query), strings.NewReader(loginToken))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	_, body, err := c.do(req, http.StatusOK)
	return string(body), err
}

// GetToken requests a token with a workerpool authorization. workerSignature is
// the worker's signature of the authorization challenge.
func (c *Client) GetToken(ctx context.Context, workerSignature string, auth core.WorkerpoolAuthorization) (string, error) {
	payload, err := jsonBody(auth)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/results/token", nil), payload)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", workerSignature)
	_, body, err := c.do(req, http.StatusOK)
	return string(body), err
}

// AddResult uploads a result and returns its storage link
func (c *Client) AddResult(ctx context.Context, token string, model core.ResultModel) (string, error) {
	payload, err := jsonBody(model)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/results", nil), payload)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	_, body, err := c.do(req, http.StatusOK)
	return string(body), err
}

// IsResultUploaded reports whether the proxy stored a result for chainTaskID
func (c *Client) IsResultUploaded(ctx context.Context, token, chainTaskID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint("/v1/results/"+url.PathEscape(chainTaskID), nil), nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", token)
	code, _, err := c.do(req, http.StatusNoContent, http.StatusNotFound)
	if err != nil {
		return false, err
	}
	return code == http.StatusNoContent, nil
}

// GetIpfsHashForTask returns the storage handle of chainTaskID, or a 404 StatusError
func (c *Client) GetIpfsHashForTask(ctx context.Context, chainTaskID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/results/"+url.PathEscape(chainTaskID)+"/ipfshash", nil), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	_, body, err := c.do(req, http.StatusOK)
	return string(body), err
}

// Version returns the build information of the proxy
func (c *Client) Version(ctx context.Context) (buildinfo.Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/version", nil), nil)
	if err != nil {
		return buildinfo.Info{}, fmt.Errorf("creating request: %w", err)
	}
	_, body, err := c.do(req, http.StatusOK)
	if err != nil {
		return buildinfo.Info{}, err
	}
	var info buildinfo.Info
	if err := json.Unmarshal(body, &info); err != nil {
		return buildinfo.Info{}, fmt.Errorf("failed to decode version: %w", err)
	}
	return info, nil
}
