package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/database"
	"github.com/charlesng35/verifolio/pkg/crypto"
)

const (
	jwtSecretBytes   = 48
	stateSecretBytes = 32
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated[database.JWTSecretSetting] = true
	}

	if strings.TrimSpace(cfg.Auth.State.Secret) == "" {
		secret, err := generateHexKey(stateSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate state secret: %w", err)
		}
		cfg.Auth.State.Secret = secret
		generated[database.StateSecretSetting] = true
	}

	if strings.TrimSpace(cfg.Verification.BaseURL) == "" {
		cfg.Verification.BaseURL = strings.TrimRight(cfg.Server.FrontendOrigin, "/")
	}

	return generated, nil
}

// PersistGeneratedSecrets replaces generated secrets with the values first
// stored in the database so restarts and sibling instances agree on them.
func PersistGeneratedSecrets(ctx context.Context, db *gorm.DB, cfg *Config, generated map[string]bool) error {
	targets := map[string]*string{
		database.JWTSecretSetting:   &cfg.Auth.JWT.Secret,
		database.StateSecretSetting: &cfg.Auth.State.Secret,
	}
	for key, target := range targets {
		if !generated[key] {
			continue
		}
		value, err := database.StickySecret(ctx, db, key, *target)
		if err != nil {
			return err
		}
		*target = value
	}
	return nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
