package gcp

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// IDTokenVerifier validates Google-signed ID tokens and returns their subject.
type IDTokenVerifier struct {
	audience string
}

func NewIDTokenVerifier(audience string) *IDTokenVerifier {
	return &IDTokenVerifier{audience: audience}
}

// Verify checks signature, expiry and audience, and returns the user ID.
func (v *IDTokenVerifier) Verify(ctx context.Context, token string) (string, error) {
	payload, err := idtoken.Validate(ctx, token, v.audience)
	if err != nil {
		return "", fmt.Errorf("invalid id token: %w", err)
	}
	if payload.Subject == "" {
		return "", errors.New("id token has no subject")
	}
	return payload.Subject, nil
}
