package core

import "context"

// CatalogSource lists the models the provider currently offers.
type CatalogSource interface {
	Fetch(ctx context.Context) ([]CatalogEntry, error)
}

// CredentialSource resolves the secret for a named provider.
// A false second result means no credential is configured.
type CredentialSource interface {
	Get(provider string) (string, bool)
}
