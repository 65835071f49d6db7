package auth

import (
	"context"
	"errors"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubIDTokenClient struct {
	claims        map[string]interface{}
	verifyErr     error
	revokedErr    error
	revokedChecks int
}

func (s *stubIDTokenClient) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return &firebaseauth.Token{UID: "uid-1", Claims: s.claims}, nil
}

func (s *stubIDTokenClient) VerifyIDTokenAndCheckRevoked(context.Context, string) (*firebaseauth.Token, error) {
	s.revokedChecks++
	if s.revokedErr != nil {
		return nil, s.revokedErr
	}
	return &firebaseauth.Token{UID: "uid-1", Claims: s.claims}, nil
}

func TestFirebaseVerifierRevocationOnlyForAdmins(t *testing.T) {
	revoked := errors.New("id token has been revoked")

	tests := []struct {
		name        string
		claims      map[string]interface{}
		opts        []VerifierOption
		wantErr     error
		wantChecked int
	}{
		{name: "customer skips revocation", claims: map[string]interface{}{"role": "customer"}, opts: []VerifierOption{WithAdminRevocationCheck()}},
		{name: "admin checked and revoked", claims: map[string]interface{}{"role": "admin"}, opts: []VerifierOption{WithAdminRevocationCheck()}, wantErr: revoked, wantChecked: 1},
		{name: "boolean admin claim checked", claims: map[string]interface{}{"admin": true}, opts: []VerifierOption{WithAdminRevocationCheck()}, wantErr: revoked, wantChecked: 1},
		{name: "admin without option", claims: map[string]interface{}{"role": "admin"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &stubIDTokenClient{claims: tc.claims, revokedErr: revoked}
			verifier := newFirebaseVerifier(client, 0, tc.opts...)

			token, err := verifier.VerifyIDToken(context.Background(), "token")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if tc.wantErr == nil && (token == nil || token.UID != "uid-1") {
				t.Fatalf("expected verified token, got %+v", token)
			}
			if client.revokedChecks != tc.wantChecked {
				t.Fatalf("expected %d revocation checks, got %d", tc.wantChecked, client.revokedChecks)
			}
		})
	}
}

func TestFirebaseVerifierPropagatesVerifyError(t *testing.T) {
	invalid := errors.New("bad signature")
	client := &stubIDTokenClient{verifyErr: invalid}
	verifier := newFirebaseVerifier(client, 0, WithAdminRevocationCheck())

	if _, err := verifier.VerifyIDToken(context.Background(), "token"); !errors.Is(err, invalid) {
		t.Fatalf("expected verify error, got %v", err)
	}
	if client.revokedChecks != 0 {
		t.Fatalf("expected no revocation check after failed verification")
	}
}
