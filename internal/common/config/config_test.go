package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRejectsUnknownSeedVaultBackend(t *testing.T) {
	t.Setenv("SEED_VAULT", "vaultd")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed vault backend")
}

func TestLoadDerivedVaultRequiresMasterSecret(t *testing.T) {
	t.Setenv("SEED_VAULT", "derived")
	t.Setenv("SEED_MASTER_SECRET", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAcceptsDerivedVaultWithSecret(t *testing.T) {
	t.Setenv("SEED_VAULT", "derived")
	t.Setenv("SEED_MASTER_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "derived", cfg.SeedVault.Backend)
}

func TestLoadEnforcesPercentSplit(t *testing.T) {
	t.Setenv("WINNER_SHARE_PERCENT", "60")
	t.Setenv("COMMISSION_PERCENT", "30")
	_, err := Load()
	require.Error(t, err)
}
