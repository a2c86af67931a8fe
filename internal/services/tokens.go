package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// TokenBytes is the entropy of a participant token; tokens are hex encoded.
const TokenBytes = 32

// TokenLength is the length of an encoded participant token.
const TokenLength = TokenBytes * 2

// NewToken reads TokenBytes from r and returns them hex encoded.
func NewToken(r io.Reader) (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IssueTokens builds one participant per role for sessionID, each carrying a
// fresh token.
func IssueTokens(r io.Reader, sessionID string, newID func() string) ([]*Participant, error) {
	out := make([]*Participant, 0, len(Roles))
	for _, role := range Roles {
		tok, err := NewToken(r)
		if err != nil {
			return nil, err
		}
		out = append(out, &Participant{ID: newID(), SessionID: sessionID, Role: role, Token: tok})
	}
	return out, nil
}

// LooksLikeToken rejects values that cannot be an issued token before any
// store lookup.
func LooksLikeToken(tok string) bool {
	if len(tok) != TokenLength {
		return false
	}
	_, err := hex.DecodeString(tok)
	return err == nil
}

func newID() string {
	return uuid.NewString()
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

var tokenEntropy io.Reader = rand.Reader
