package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Resolve looks up a market by slug or URL and prints its token metadata.
func (a *App) Resolve(ctx context.Context, slug string) error {
	market, err := a.newResolver().ResolveBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("resolve market %q: %w", slug, err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(market)
}
