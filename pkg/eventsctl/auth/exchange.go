package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/telekom/eventsctl/pkg/metrics"
)

// MaxExpiresIn bounds the expires_in accepted from the token endpoint, in seconds.
const MaxExpiresIn = 365 * 24 * 60 * 60

// callback parameters removed from the location after a successful exchange.
var callbackParams = []string{"code", "state", "session_state", "iss"}

type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Exchanger redeems the authorization code found in the current location.
type Exchanger struct {
	cfg        ProviderConfig
	endpoints  Endpoints
	http       *resty.Client
	storage    ScopedStorage
	navigator  Navigator
	store      *TokenStore
	idVerifier IDTokenVerifier
	log        *zap.SugaredLogger
}

// HandleCallback exchanges the code in the current location for tokens.
// Without a code it returns (nil, nil) and does nothing. On failure the token
// store is left untouched.
func (e *Exchanger) HandleCallback(ctx context.Context) (*TokenSet, error) {
	const op = "handle callback"
	location := e.navigator.Location()
	if location == nil {
		return nil, nil
	}
	query := location.Query()
	code := query.Get("code")
	if code == "" {
		if providerErr := query.Get("error"); providerErr != "" {
			e.log.Warnw("Identity provider redirected with an error", "error", providerErr)
		}
		return nil, nil
	}

	verifier, ok, err := e.storage.Get(VerifierKey)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues(KindMissingVerifier.String()).Inc()
		return nil, newError(KindMissingVerifier, op, fmt.Errorf("failed to read code verifier: %w", err))
	}
	if !ok || verifier == "" {
		metrics.TokenExchanges.WithLabelValues(KindMissingVerifier.String()).Inc()
		return nil, newError(KindMissingVerifier, op, errors.New("no code verifier stored for this login"))
	}

	resp, err := e.exchange(ctx, code, verifier)
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) {
			metrics.TokenExchanges.WithLabelValues(authErr.Kind.String()).Inc()
		}
		e.log.Warnw("Token exchange failed", "error", err)
		return nil, err
	}
	if e.idVerifier != nil {
		if resp.IDToken == "" {
			metrics.TokenExchanges.WithLabelValues(KindMalformedResponse.String()).Inc()
			return nil, newError(KindMalformedResponse, op, errors.New("response is missing id_token"))
		}
		if err := e.idVerifier.Verify(ctx, resp.IDToken); err != nil {
			metrics.TokenExchanges.WithLabelValues(KindMalformedResponse.String()).Inc()
			return nil, newError(KindMalformedResponse, op, fmt.Errorf("id_token verification failed: %w", err))
		}
	}

	tokens := e.store.Set(*resp)
	if err := e.storage.Remove(VerifierKey); err != nil {
		e.log.Warnw("Failed to remove code verifier", "error", err)
	}
	e.navigator.ReplaceLocation(withoutCallbackParams(location))
	metrics.TokenExchanges.WithLabelValues("success").Inc()
	e.log.Infow("Token exchange succeeded", "expiresAt", tokens.ExpiresAt)
	return &tokens, nil
}

func (e *Exchanger) exchange(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	const op = "token exchange"
	if e.cfg.ExchangeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ExchangeTimeout)
		defer cancel()
	}
	resp, err := e.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{
			"grant_type":    "authorization_code",
			"client_id":     e.cfg.ClientID,
			"code":          code,
			"redirect_uri":  e.navigator.Origin(),
			"code_verifier": verifier,
		}).
		Post(e.endpoints.TokenURL)
	if err != nil {
		if isTimeout(err) {
			return nil, newError(KindTimeout, op, err)
		}
		return nil, newError(KindTokenEndpoint, op, err)
	}
	if !resp.IsSuccess() {
		var providerErr oauthErrorResponse
		_ = json.Unmarshal(resp.Body(), &providerErr)
		return nil, &Error{Kind: KindTokenEndpoint, Op: op, Status: resp.StatusCode(), Code: providerErr.Error}
	}

	var payload TokenResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, newError(KindMalformedResponse, op, errors.New("response is not a JSON token object"))
	}
	if payload.AccessToken == "" {
		return nil, newError(KindMalformedResponse, op, errors.New("response is missing access_token"))
	}
	if payload.ExpiresIn <= 0 {
		return nil, newError(KindMalformedResponse, op, errors.New("response is missing expires_in"))
	}
	if payload.ExpiresIn > MaxExpiresIn {
		return nil, newError(KindMalformedResponse, op, fmt.Errorf("expires_in %d exceeds %d seconds", payload.ExpiresIn, MaxExpiresIn))
	}
	return &payload, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func withoutCallbackParams(u *url.URL) *url.URL {
	cleaned := *u
	query := cleaned.Query()
	for _, p := range callbackParams {
		query.Del(p)
	}
	cleaned.RawQuery = query.Encode()
	return &cleaned
}
