// Package codehost defines the contract the scan pipeline consumes from a remote
// code-hosting API, plus credential plumbing for per-requester clients.
package codehost

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Tree entry types returned by GetTree.
const (
	EntryTree = "tree"
	EntryBlob = "blob"
)

var (
	// ErrNotFound is returned when the host reports an unknown repository, ref or blob.
	ErrNotFound = errors.New("codehost: not found")
	// ErrNoCredentials is returned when no token is available for a requester.
	ErrNoCredentials = errors.New("codehost: no credentials for requester")
)

// RepoMetadata is the subset of repository details the pipeline refreshes.
type RepoMetadata struct {
	Stars         int
	Language      string
	DefaultBranch string
}

// TreeEntry is a single node of a recursive repository tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Client reads repositories from a code host.
type Client interface {
	GetRepoMetadata(ctx context.Context, owner, name string) (RepoMetadata, error)
	GetTree(ctx context.Context, owner, name, branch string) ([]TreeEntry, error)
	// GetBlob returns the base64 encoded content behind a tree entry URL.
	GetBlob(ctx context.Context, url string) (string, error)
}

// Credentials supplies bearer tokens on behalf of a requester.
type Credentials interface {
	TokenSource(ctx context.Context, requesterID string) (oauth2.TokenSource, error)
}

// StaticCredentials hands every requester the same token. Used for dev and the CLI.
type StaticCredentials struct {
	Token string
}

// TokenSource returns a static source, or nil when no token is configured.
func (s StaticCredentials) TokenSource(context.Context, string) (oauth2.TokenSource, error) {
	if strings.TrimSpace(s.Token) == "" {
		return nil, nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.Token, TokenType: "Bearer"}), nil
}

// Factory builds a Client authorized for a requester.
type Factory interface {
	ForRequester(ctx context.Context, requesterID string) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, requesterID string) (Client, error)

// ForRequester calls f.
func (f FactoryFunc) ForRequester(ctx context.Context, requesterID string) (Client, error) {
	return f(ctx, requesterID)
}

// StaticFactory always returns the same client.
func StaticFactory(c Client) Factory {
	return FactoryFunc(func(context.Context, string) (Client, error) { return c, nil })
}

// DecodeBlob decodes base64 blob content as returned by GetBlob. Hosts wrap the
// payload at 60 or 76 columns, so line breaks are dropped first.
func DecodeBlob(encoded string) (string, error) {
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(encoded)
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("decode blob: %w", err)
	}
	return string(raw), nil
}
