// Package hashing turns passwords into the digests the unlocker compares against.
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Default is used when no method is given.
const Default = "sha256"

const Bcrypt = "bcrypt"

var ErrUnsupportedMethod = errors.New("unsupported hash method")

var digests = map[string]func() hash.Hash{
	"sha224": sha256.New224,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
	"md5":    md5.New,
}

// Methods lists every supported method name.
func Methods() []string {
	out := make([]string, 0, len(digests)+1)
	for name := range digests {
		out = append(out, name)
	}
	out = append(out, Bcrypt)
	sort.Strings(out)
	return out
}

func normalize(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return Default
	}
	return method
}

// Supported reports whether method can be used with Hash and Verify.
func Supported(method string) bool {
	method = normalize(method)
	_, ok := digests[method]
	return ok || method == Bcrypt
}

// Hash returns the hex digest of value, or a bcrypt hash for the bcrypt method.
func Hash(value, method string) (string, error) {
	method = normalize(method)
	if method == Bcrypt {
		out, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(out), nil
	}

	newHash, ok := digests[method]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	h := newHash()
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether value hashes to want under method.
func Verify(value, want, method string) (bool, error) {
	method = normalize(method)
	if method == Bcrypt {
		err := bcrypt.CompareHashAndPassword([]byte(want), []byte(value))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("bcrypt: %w", err)
		}
		return true, nil
	}

	got, err := Hash(value, method)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(want))) == 1, nil
}
