package llm

import (
	"fmt"
	"os"
)

// CredentialSource resolves a provider name to its bound environment
// variable name (§4.1 ProviderKeys). It is satisfied by *config.Registry.
type CredentialSource interface {
	CredentialHandle(provider string) string
}

// Credentials reads provider API keys from the process environment once at
// startup, per the credentials-store-is-external-collaborator boundary: this
// package only resolves env var names bound in configuration, never stores
// or rotates secrets itself.
type Credentials struct {
	keys map[string]string
}

// LoadCredentials resolves one environment variable per provider bound in
// source. A provider bound to an env var that is unset or empty is recorded
// as absent; callers surface that as AuthMissing at call time rather than at
// startup, since a provider with no enabled agents need not have a key.
func LoadCredentials(source CredentialSource, providers []string) *Credentials {
	keys := make(map[string]string, len(providers))
	for _, p := range providers {
		envVar := source.CredentialHandle(p)
		if envVar == "" {
			continue
		}
		if v := os.Getenv(envVar); v != "" {
			keys[p] = v
		}
	}
	return &Credentials{keys: keys}
}

// APIKey returns the resolved key for provider, or an error if none was
// found.
func (c *Credentials) APIKey(provider string) (string, error) {
	if key, ok := c.keys[provider]; ok {
		return key, nil
	}
	return "", &CallError{Kind: KindAuthMissing, Message: fmt.Sprintf("no credential available for provider %q", provider)}
}
