package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/urishop/api/internal/platform/config"
)

// idTokenClient is the subset of the Admin SDK auth client used here.
type idTokenClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier verifies storefront and back-office ID tokens through the Firebase Admin SDK.
type FirebaseVerifier struct {
	client       idTokenClient
	timeout      time.Duration
	roleClaim    string
	revokedRoles map[string]struct{}
}

// VerifierOption customises a FirebaseVerifier.
type VerifierOption func(*FirebaseVerifier)

// WithAdminRevocationCheck makes tokens carrying the admin role pay one extra Admin SDK round trip so a
// revoked staff session cannot keep changing order statuses until its token expires.
func WithAdminRevocationCheck() VerifierOption {
	return func(v *FirebaseVerifier) {
		v.revokedRoles[RoleAdmin] = struct{}{}
	}
}

// NewFirebaseVerifier initialises the Admin SDK for the configured project.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, timeout time.Duration, opts ...VerifierOption) (*FirebaseVerifier, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if creds := strings.TrimSpace(cfg.CredentialsFile); creds != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(creds))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return newFirebaseVerifier(client, timeout, opts...), nil
}

func newFirebaseVerifier(client idTokenClient, timeout time.Duration, opts ...VerifierOption) *FirebaseVerifier {
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	v := &FirebaseVerifier{
		client:       client,
		timeout:      timeout,
		roleClaim:    defaultRoleClaim,
		revokedRoles: map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// VerifyIDToken checks signature, audience and expiry, then revocation for roles that require it.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil || len(v.revokedRoles) == 0 {
		return token, err
	}
	for _, role := range rolesFromClaims(token.Claims, v.roleClaim) {
		if _, ok := v.revokedRoles[role]; ok {
			return v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
		}
	}
	return token, nil
}
