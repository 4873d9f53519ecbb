package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 5 * time.Second

// Verifier validates bearer credentials issued by the identity provider.
// It holds only key material and parser configuration; verification itself
// is pure and safe for concurrent use.
type Verifier struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
	leeway    time.Duration
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier) error

// WithHS256Secret enables verification of HS256-signed tokens.
func WithHS256Secret(secret string) VerifierOption {
	return func(v *Verifier) error {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return errors.New("auth: empty HS256 secret")
		}
		v.secret = []byte(secret)
		return nil
	}
}

// WithRS256PublicKey enables verification of RS256-signed tokens using the
// identity provider's published key material.
func WithRS256PublicKey(pemData string) VerifierOption {
	return func(v *Verifier) error {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
		if err != nil {
			return fmt.Errorf("auth: parse RS256 public key: %w", err)
		}
		v.publicKey = key
		return nil
	}
}

// WithExpectedIssuer requires tokens to carry the given issuer claim.
func WithExpectedIssuer(issuer string) VerifierOption {
	return func(v *Verifier) error {
		v.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithLeeway overrides the clock-skew tolerance applied to time claims.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) error {
		if d > 0 {
			v.leeway = d
		}
		return nil
	}
}

// NewVerifier constructs a Verifier. At least one signing method must be
// configured.
func NewVerifier(opts ...VerifierOption) (*Verifier, error) {
	v := &Verifier{leeway: defaultLeeway}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	if v.secret == nil && v.publicKey == nil {
		return nil, errors.New("auth: verifier requires a secret or a public key")
	}
	return v, nil
}

// Verify validates the credential's signature and time claims and extracts
// the principal. Any failure collapses to ErrUnauthenticated; the caller
// never learns why a credential was rejected.
func (v *Verifier) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.validMethods()),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFor, opts...)
	if err != nil || !parsed.Valid {
		return Principal{}, ErrUnauthenticated
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return Principal{}, ErrUnauthenticated
	}

	copied := make(map[string]any, len(claims))
	for k, val := range claims {
		copied[k] = val
	}
	return Principal{SubjectID: subject, Claims: copied}, nil
}

func (v *Verifier) validMethods() []string {
	var methods []string
	if v.publicKey != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	if v.secret != nil {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	return methods
}

func (v *Verifier) keyFor(t *jwt.Token) (any, error) {
	switch t.Method.Alg() {
	case jwt.SigningMethodRS256.Alg():
		if v.publicKey == nil {
			return nil, ErrUnauthenticated
		}
		return v.publicKey, nil
	case jwt.SigningMethodHS256.Alg():
		if v.secret == nil {
			return nil, ErrUnauthenticated
		}
		return v.secret, nil
	default:
		return nil, ErrUnauthenticated
	}
}
