// Package oidctest runs an in-process OpenID Connect issuer for tests.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const keyID = "oidctest"

// Subject describes the account the issuer will vouch for.
type Subject struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

type grant struct {
	subject   Subject
	nonce     string
	challenge string
}

// Issuer is a minimal OIDC issuer with discovery, JWKS and a token endpoint
// that enforces PKCE and single-use codes.
type Issuer struct {
	Server   *httptest.Server
	ClientID string

	key    *rsa.PrivateKey
	mu     sync.Mutex
	grants map[string]grant
	seq    int
	fail   bool
}

// NewIssuer starts an issuer for clientID and stops it when t finishes.
func NewIssuer(t testing.TB, clientID string) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("oidctest: generate key: %v", err)
	}

	iss := &Issuer{ClientID: clientID, key: key, grants: map[string]grant{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", iss.discovery)
	mux.HandleFunc("/jwks", iss.jwks)
	mux.HandleFunc("/token", iss.token)
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	iss.Server = httptest.NewServer(mux)
	t.Cleanup(iss.Server.Close)
	return iss
}

// URL returns the issuer identifier.
func (i *Issuer) URL() string {
	return i.Server.URL
}

// IssueCode registers an authorization code for subject bound to the nonce
// and PKCE challenge taken from authURL.
func (i *Issuer) IssueCode(subject Subject, authURL string) string {
	parsed, err := url.Parse(authURL)
	if err != nil {
		panic(err)
	}
	query := parsed.Query()

	i.mu.Lock()
	defer i.mu.Unlock()
	i.seq++
	code := "code-" + big.NewInt(int64(i.seq)).String()
	i.grants[code] = grant{
		subject:   subject,
		nonce:     query.Get("nonce"),
		challenge: query.Get("code_challenge"),
	}
	return code
}

// FailTransport makes the token endpoint answer 503 until reset.
func (i *Issuer) FailTransport(fail bool) {
	i.mu.Lock()
	i.fail = fail
	i.mu.Unlock()
}

func (i *Issuer) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                i.URL(),
		"authorization_endpoint":                i.URL() + "/authorize",
		"token_endpoint":                        i.URL() + "/token",
		"jwks_uri":                              i.URL() + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (i *Issuer) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := i.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (i *Issuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	i.mu.Lock()
	if i.fail {
		i.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily_unavailable"})
		return
	}
	code := r.PostForm.Get("code")
	g, ok := i.grants[code]
	delete(i.grants, code)
	i.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	if g.challenge != "" {
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != g.challenge {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            i.URL(),
		"aud":            i.ClientID,
		"sub":            g.subject.ID,
		"email":          g.subject.Email,
		"email_verified": g.subject.EmailVerified,
		"name":           g.subject.Name,
		"picture":        g.subject.Picture,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
	if g.nonce != "" {
		claims["nonce"] = g.nonce
	}
	idToken := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	idToken.Header["kid"] = keyID
	signed, err := idToken.SignedString(i.key)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "access-" + code,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     signed,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
