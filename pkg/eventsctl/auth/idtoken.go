package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// IDTokenVerifier checks an id_token returned by the token endpoint.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) error
}

// OIDCVerifier verifies id_tokens against the realm's published keys. The
// provider is discovered on first use and cached once discovery succeeds.
type OIDCVerifier struct {
	issuer   string
	clientID string
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(issuer, clientID string, client *http.Client, now func() time.Time) *OIDCVerifier {
	return &OIDCVerifier{issuer: issuer, clientID: clientID, client: client, now: now}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawIDToken string) error {
	verifier, err := v.get(ctx)
	if err != nil {
		return err
	}
	_, err = verifier.Verify(ctx, rawIDToken)
	return err
}

func (v *OIDCVerifier) get(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.verifier != nil {
		return v.verifier, nil
	}
	// the provider keeps this context for later key set refreshes
	providerCtx := context.WithoutCancel(ctx)
	if v.client != nil {
		providerCtx = oidc.ClientContext(providerCtx, v.client)
	}
	provider, err := oidc.NewProvider(providerCtx, v.issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	v.verifier = provider.Verifier(&oidc.Config{ClientID: v.clientID, Now: v.now})
	return v.verifier, nil
}
