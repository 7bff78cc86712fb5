package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gin-gonic/gin"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/buildinfo"
	"github.com/rs/zerolog/log"
)

// ChallengeIssuer creates EIP-712 login challenges
type ChallengeIssuer interface {
	CreateChallenge(ctx context.Context, chainID int64) (apitypes.TypedData, error)
}

// Authenticator redeems challenges and workerpool authorizations for tokens
type Authenticator interface {
	Login(ctx context.Context, loginToken string) (string, error)
	AuthorizeWorker(ctx context.Context, workerSignature string, auth core.WorkerpoolAuthorization) (string, error)
}

// TokenValidator checks access tokens presented on privileged routes
type TokenValidator interface {
	IsValidJwt(ctx context.Context, token string) bool
	WalletAddressFromJwt(token string) (string, error)
}

// ResultProxy decides on and performs result uploads
type ResultProxy interface {
	CanUploadResult(ctx context.Context, model core.ResultModel, walletAddress string) bool
	AddResult(ctx context.Context, model core.ResultModel, uploader string) (string, error)
	IsResultFound(ctx context.Context, chainTaskID string) (bool, error)
	GetResultHandle(ctx context.Context, chainTaskID string) (string, error)
}

// HealthCheck reports whether a backing dependency is usable
type HealthCheck func(ctx context.Context) error

// Handlers contains the HTTP handlers of the result proxy
type Handlers struct {
	challenges ChallengeIssuer
	auth       Authenticator
	tokens     TokenValidator
	proxy      ResultProxy
	health     []HealthCheck
}

// NewHandlers creates new handlers
func NewHandlers(challenges ChallengeIssuer, auth Authenticator, tokens TokenValidator, proxy ResultProxy, health ...HealthCheck) *Handlers {
	return &Handlers{
		challenges: challenges,
		auth:       auth,
		tokens:     tokens,
		proxy:      proxy,
		health:     health,
	}
}

// Challenge returns a fresh EIP-712 challenge for the chainId query parameter
func (h *Handlers) Challenge(c *gin.Context) {
	chainID, err := strconv.ParseInt(c.Query("chainId"), 10, 64)
	if err != nil || chainID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chainId"})
		return
	}

	typedData, err := h.challenges.CreateChallenge(c.Request.Context(), chainID)
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("Failed to create challenge")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, typedData)
}

// Login exchanges a hash_signature_address body for an access token
func (h *Handlers) Login(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	token, err := h.auth.Login(c.Request.Context(), string(body))
	switch {
	case errors.Is(err, core.ErrInvalidChallenge):
		c.Status(http.StatusUnauthorized)
	case err != nil:
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("Login failed")
		c.Status(http.StatusInternalServerError)
	default:
		c.String(http.StatusOK, token)
	}
}

// Token issues an access token to a worker holding a workerpool authorization.
// The Authorization header carries the worker's signature of its challenge.
func (h *Handlers) Token(c *gin.Context) {
	var auth core.WorkerpoolAuthorization
	if err := c.ShouldBindJSON(&auth); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	token, err := h.auth.AuthorizeWorker(c.Request.Context(), c.GetHeader("Authorization"), auth)
	if err != nil {
		var authErr core.AuthorizationError
		if !errors.Is(err, core.ErrInvalidSignature) && !errors.As(err, &authErr) {
			log.Ctx(c.Request.Context()).Error().Err(err).Str("walletAddress", auth.WorkerWallet).Msg("Token issuance failed")
		}
		c.Status(http.StatusUnauthorized)
		return
	}
	c.String(http.StatusOK, token)
}

// AddResult stores a result pushed by an authorized uploader and returns its link
func (h *Handlers) AddResult(c *gin.Context) {
	ctx := c.Request.Context()
	token := c.GetHeader("Authorization")
	if !h.tokens.IsValidJwt(ctx, token) {
		c.Status(http.StatusUnauthorized)
		return
	}
	walletAddress, err := h.tokens.WalletAddressFromJwt(token)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	var model core.ResultModel
	if err := c.ShouldBindJSON(&model); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if !h.proxy.CanUploadResult(ctx, model, walletAddress) {
		c.Status(http.StatusUnauthorized)
		return
	}

	link, err := h.proxy.AddResult(ctx, model, walletAddress)
	if err != nil || link == "" {
		log.Ctx(ctx).Warn().Err(err).Str("chainTaskId", model.ChainTaskID).Msg("Result upload rejected")
		c.Status(http.StatusBadRequest)
		return
	}

	log.Ctx(ctx).Info().
		Str("chainTaskId", model.ChainTaskID).
		Str("uploadRequester", walletAddress).
		Str("resultLink", link).
		Msg("Result uploaded successfully")
	c.String(http.StatusOK, link)
}

// IsResultUploaded answers 204 when the task has a stored result, 404 otherwise
func (h *Handlers) IsResultUploaded(c *gin.Context) {
	ctx := c.Request.Context()
	if !h.tokens.IsValidJwt(ctx, c.GetHeader("Authorization")) {
		c.Status(http.StatusUnauthorized)
		return
	}

	found, err := h.proxy.IsResultFound(ctx, c.Param("chainTaskId"))
	switch {
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Str("chainTaskId", c.Param("chainTaskId")).Msg("Failed to look up result")
		c.Status(http.StatusInternalServerError)
	case found:
		c.Status(http.StatusNoContent)
	default:
		c.Status(http.StatusNotFound)
	}
}

// ResultHandle returns the storage handle recorded for a task
func (h *Handlers) ResultHandle(c *gin.Context) {
	ctx := c.Request.Context()
	handle, err := h.proxy.GetResultHandle(ctx, c.Param("chainTaskId"))
	switch {
	case errors.Is(err, core.ErrResultNotFound) || (err == nil && handle == ""):
		c.Status(http.StatusNotFound)
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Str("chainTaskId", c.Param("chainTaskId")).Msg("Failed to look up result handle")
		c.Status(http.StatusInternalServerError)
	default:
		c.String(http.StatusOK, handle)
	}
}

func (h *Handlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, buildinfo.GetBuildInfo())
}

func (h *Handlers) Healthz(c *gin.Context) {
	for _, check := range h.health {
		if err := check(c.Request.Context()); err != nil {
			log.Ctx(c.Request.Context()).Warn().Err(err).Msg("Health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
