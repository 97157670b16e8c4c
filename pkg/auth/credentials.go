// Package auth resolves configured credential references into provider
// access tokens. Tokens are only read here; storing and editing them is the
// job of the keyring or the tool that wrote the token file.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Errors
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrInvalidReference   = errors.New("invalid credential reference")
)

// Source looks up a token by name
type Source interface {
	Lookup(name string) (string, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(name string) (string, error)

// Lookup calls f
func (f SourceFunc) Lookup(name string) (string, error) { return f(name) }

// EnvSource reads tokens from environment variables
var EnvSource = SourceFunc(func(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("env %s: %w", name, ErrCredentialNotFound)
	}
	return v, nil
})

// Resolver maps reference schemes to sources. A reference without a known
// scheme prefix is the token itself.
//
//	env:VK_TOKEN_1         environment variable
//	keyring:primary        system keychain entry
//	file:/path/tokens.enc#primary  passphrase-encrypted token file
type Resolver struct {
	sources map[string]Source
	opener  func(path string) (Source, error)
	files   map[string]Source
}

// NewResolver creates a resolver with the env and keyring schemes and an
// encrypted-file opener using passphrase
func NewResolver(passphrase string) *Resolver {
	return &Resolver{
		sources: map[string]Source{
			"env":     EnvSource,
			"keyring": NewKeyringSource(),
		},
		opener: func(path string) (Source, error) {
			return OpenTokenFile(path, passphrase)
		},
		files: make(map[string]Source),
	}
}

// WithSource registers or replaces the source for a scheme
func (r *Resolver) WithSource(scheme string, s Source) *Resolver {
	r.sources[scheme] = s
	return r
}

// Resolve turns references into tokens, preserving order and dropping
// duplicates. Every failure is reported.
func (r *Resolver) Resolve(refs []string) ([]string, error) {
	seen := make(map[string]bool, len(refs))
	var tokens []string
	var errList []error

	for i, ref := range refs {
		tok, err := r.resolve(strings.TrimSpace(ref))
		if err != nil {
			errList = append(errList, fmt.Errorf("credential %d: %w", i, err))
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}

	return tokens, errors.Join(errList...)
}

func (r *Resolver) resolve(ref string) (string, error) {
	if ref == "" {
		return "", ErrInvalidReference
	}
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return ref, nil
	}

	if scheme == "file" {
		path, name, found := strings.Cut(rest, "#")
		if !found || path == "" || name == "" {
			return "", fmt.Errorf("%w: file reference needs path#name", ErrInvalidReference)
		}
		src, err := r.file(path)
		if err != nil {
			return "", err
		}
		return src.Lookup(name)
	}

	src, known := r.sources[scheme]
	if !known {
		return ref, nil
	}
	if rest == "" {
		return "", fmt.Errorf("%w: empty %s name", ErrInvalidReference, scheme)
	}
	return src.Lookup(rest)
}

func (r *Resolver) file(path string) (Source, error) {
	if src, ok := r.files[path]; ok {
		return src, nil
	}
	src, err := r.opener(path)
	if err != nil {
		return nil, err
	}
	r.files[path] = src
	return src, nil
}

// Mask hides all but the first and last four characters of a token
func Mask(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
