package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/spendsense/pkg/jwtx"
)

// InitCookieKeys creates the keys that sign session cookies. They live in
// memory only, which matches the sessions they protect: a restart drops both.
func InitCookieKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	logger.Info("initializing ephemeral key manager", "num_keys", cfg.NumKeys)

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  cfg.Issuer,
		NumKeys: cfg.NumKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}

	logger.Info("generated ephemeral signing keys",
		"algorithm", jwtx.AlgorithmEdDSA,
		"num_keys", keyManager.NumSigners(),
		"issuer", cfg.Issuer,
	)
	return keyManager, nil
}
