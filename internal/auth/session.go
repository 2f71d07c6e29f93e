// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is who a connection plays as. UserID is the durable key for
// hands, turns and ratings.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// NewGuest returns a fresh guest identity. An empty name gets a generated one.
func NewGuest(name string) Identity {
	id := uuid.NewString()
	if name == "" {
		name = "Guest-" + id[:4]
	}
	return Identity{UserID: "guest-" + id, Name: name}
}

// Issuer signs and verifies identity tokens with an ed25519 key pair.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expire     time.Duration // 0 means tokens never expire
	now        func() time.Time
}

// ParseExpire reads a token lifetime. "never", "0" and "" all mean no expiry.
func ParseExpire(s string) (time.Duration, error) {
	if s == "never" || s == "0" || s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// NewIssuer generates a key pair at runtime. Tokens from a previous process
// will not verify.
func NewIssuer(expire string) (*Issuer, error) {
	d, err := ParseExpire(expire)
	if err != nil {
		return nil, err
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, expire: d, now: time.Now}, nil
}

// NewIssuerFromFiles reads raw ed25519 keys, so every instance can verify
// tokens issued by any other.
func NewIssuerFromFiles(privatePath, publicPath, expire string) (*Issuer, error) {
	d, err := ParseExpire(expire)
	if err != nil {
		return nil, err
	}
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	return &Issuer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		expire:     d,
		now:        time.Now,
	}, nil
}

// Issue signs a token with "sub" = UserID and "name" = Name.
func (i *Issuer) Issue(id Identity) (string, error) {
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"name": id.Name,
		"iat":  i.now().Unix(),
	}
	if i.expire > 0 {
		claims["exp"] = i.now().Add(i.expire).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// Authenticate verifies a token and returns the identity it carries.
func (i *Issuer) Authenticate(tokenString string) (Identity, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Identity{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid jwt claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("missing sub in jwt")
	}
	name, _ := claims["name"].(string)
	return Identity{UserID: userID, Name: name}, nil
}
