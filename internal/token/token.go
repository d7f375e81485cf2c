// Package token encodes investigation state into opaque pagination tokens.
//
// A token is an HS256-signed claims set whose data claim holds the
// encrypted filter payload. It is bound to one wiki (issuer) and one
// reviewer (subject) and expires after a fixed lifetime. Decoding never
// reports why a token was unusable.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"
	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/cdtdelta/checkuser/internal/model"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 24 * time.Hour

// DefaultCiphers is the cipher preference list, strongest first.
var DefaultCiphers = []string{CipherAES256CTR, CipherAES256CBC}

var (
	// ErrNoCipher means none of the preferred ciphers is available. It is a
	// deployment error and should stop the process.
	ErrNoCipher = errors.New("no supported token cipher available")
	// ErrEmptySecret is returned when the codec is built without a secret.
	ErrEmptySecret = errors.New("token secret must not be empty")
)

const (
	infoEncrypt = "checkuser token encryption"
	infoSign    = "checkuser token signing"
	keySize     = 32
)

// claims is the signed container. Data is the base64 ciphertext of the
// serialized payload.
type claims struct {
	jwt.RegisteredClaims
	Data string `json:"data"`
}

// Codec encodes and decodes pagination tokens. It is safe for concurrent
// use; all state is fixed at construction.
type Codec struct {
	secret  []byte
	encKey  []byte
	signKey []byte
	cipher  streamCipher
	ttl     time.Duration
	now     func() time.Time
	log     logr.Logger
	prefs   []string
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger that receives decode failure reasons at V(1).
func WithLogger(log logr.Logger) Option {
	return func(c *Codec) {
		c.log = log
	}
}

// WithCiphers replaces the cipher preference list.
func WithCiphers(names ...string) Option {
	return func(c *Codec) {
		c.prefs = names
	}
}

// New builds a codec from the server secret. It fails with ErrNoCipher when
// no preferred cipher is available.
func New(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	c := &Codec{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
		log:    logr.Discard(),
		prefs:  DefaultCiphers,
	}
	for _, opt := range opts {
		opt(c)
	}

	sc, ok := selectCipher(c.prefs)
	if !ok {
		return nil, fmt.Errorf("%w: tried %v", ErrNoCipher, c.prefs)
	}
	c.cipher = sc

	var err error
	if c.encKey, err = deriveKey(c.secret, infoEncrypt+" "+sc.name); err != nil {
		return nil, fmt.Errorf("deriving encryption key: %w", err)
	}
	if c.signKey, err = deriveKey(c.secret, infoSign); err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}
	return c, nil
}

// Cipher returns the name of the cipher in use.
func (c *Codec) Cipher() string {
	return c.cipher.name
}

// TTL returns the token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode serializes payload for subject on wikiID.
func (c *Codec) Encode(subject, wikiID string, payload model.FilterPayload) (string, error) {
	plain, err := json.Marshal(payload.Normalize())
	if err != nil {
		return "", fmt.Errorf("serializing payload: %w", err)
	}

	sealed, err := c.cipher.encrypt(c.encKey, c.iv(subject, wikiID), plain)
	if err != nil {
		return "", fmt.Errorf("encrypting payload: %w", err)
	}

	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    wikiID,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Data: base64.RawURLEncoding.EncodeToString(sealed),
	})

	signed, err := tok.SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Decode returns the payload carried by raw. The second result is false for
// any token that is malformed, forged, expired, or issued to another subject
// or wiki. The reason is only logged.
func (c *Codec) Decode(subject, wikiID, raw string) (model.FilterPayload, bool) {
	if raw == "" {
		return model.FilterPayload{}, false
	}
	payload, err := c.decode(subject, wikiID, raw)
	if err != nil {
		c.log.V(1).Info("discarding pagination token", "subject", subject, "reason", err.Error())
		return model.FilterPayload{}, false
	}
	return payload, true
}

func (c *Codec) decode(subject, wikiID, raw string) (model.FilterPayload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(wikiID),
		jwt.WithSubject(subject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)

	var cl claims
	tok, err := parser.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) {
		return c.signKey, nil
	})
	if err != nil {
		return model.FilterPayload{}, fmt.Errorf("verifying token: %w", err)
	}
	if !tok.Valid {
		return model.FilterPayload{}, errors.New("token not valid")
	}
	// An empty expected issuer or subject disables the parser's own checks.
	if cl.Issuer != wikiID || cl.Subject != subject {
		return model.FilterPayload{}, errors.New("token bound to another wiki or subject")
	}

	sealed, err := base64.RawURLEncoding.Strict().DecodeString(cl.Data)
	if err != nil {
		return model.FilterPayload{}, fmt.Errorf("decoding data claim: %w", err)
	}
	plain, err := c.cipher.decrypt(c.encKey, c.iv(subject, wikiID), sealed)
	if err != nil {
		return model.FilterPayload{}, fmt.Errorf("decrypting payload: %w", err)
	}

	var payload model.FilterPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return model.FilterPayload{}, fmt.Errorf("parsing payload: %w", err)
	}
	return payload.Normalize(), nil
}

// iv is the first block of HMAC-SHA256(secret, wikiID || subject). It is
// fixed per wiki and subject, so it is never stored.
func (c *Codec) iv(subject, wikiID string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(wikiID))
	mac.Write([]byte(subject))
	return mac.Sum(nil)[:ivSize]
}

func deriveKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}
