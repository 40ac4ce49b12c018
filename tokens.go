package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Tokens are opaque: base64(JSON{payload, signature}) where the
// signature is HMAC-SHA256 over the exact payload bytes. Participant
// and viewer tokens are signed with independent secrets, so holding one
// kind cannot forge the other. There is no expiry; rotating a secret is
// the only way to invalidate outstanding tokens.

type tokenKind int

const (
	tokenInvalid tokenKind = iota
	tokenParticipant
	tokenViewer
)

type participantClaims struct {
	SessionID   string    `json:"sessionId"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type viewerClaims struct {
	DeviceID    string    `json:"deviceId"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
}

type tokenEnvelope struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type tokenService struct {
	sessionSecret []byte
	viewerSecret  []byte
}

// newTokenService falls back to random per-process secrets when none
// are configured, which invalidates all outstanding tokens on restart.
func newTokenService(cfg *Config) *tokenService {
	return &tokenService{
		sessionSecret: secretOrRandom(cfg.sessionSecret),
		viewerSecret:  secretOrRandom(cfg.viewerSecret),
	}
}

func secretOrRandom(configured string) []byte {
	if configured != "" {
		return []byte(configured)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return buf
}

func sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func encodeToken(secret []byte, claims any) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	envelope, err := json.Marshal(tokenEnvelope{
		Payload:   string(payload),
		Signature: sign(secret, payload),
	})
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(envelope), nil
}

// decodeToken returns the verified payload bytes, or nil on any
// malformed structure or signature mismatch.
func decodeToken(secret []byte, token string) []byte {
	// Strict mode rejects non-zero trailing padding bits, so no
	// tampered encoding can alias the original token.
	raw, err := base64.RawURLEncoding.Strict().DecodeString(token)
	if err != nil {
		return nil
	}

	var envelope tokenEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}

	payload := []byte(envelope.Payload)
	expected := sign(secret, payload)
	if !hmac.Equal([]byte(envelope.Signature), []byte(expected)) {
		return nil
	}
	return payload
}

func (t *tokenService) issueParticipant(claims participantClaims) (string, error) {
	return encodeToken(t.sessionSecret, claims)
}

func (t *tokenService) issueViewer(claims viewerClaims) (string, error) {
	return encodeToken(t.viewerSecret, claims)
}

// verify resolves a token to a typed identity. It never returns an
// error: a forged or garbled token is simply tokenInvalid.
func (t *tokenService) verify(token string) (tokenKind, *participantClaims, *viewerClaims) {
	if payload := decodeToken(t.sessionSecret, token); payload != nil {
		var claims participantClaims
		if err := json.Unmarshal(payload, &claims); err == nil && claims.SessionID != "" {
			return tokenParticipant, &claims, nil
		}
	}

	if payload := decodeToken(t.viewerSecret, token); payload != nil {
		var claims viewerClaims
		if err := json.Unmarshal(payload, &claims); err == nil && claims.DeviceID != "" {
			return tokenViewer, nil, &claims
		}
	}

	return tokenInvalid, nil, nil
}
