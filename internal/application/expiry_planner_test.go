package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ckms/internal/application"
	"github.com/turtacn/ckms/internal/domain/models"
)

func TestExpiryPlanner_NewAliasWindow_NoExistingAliases(t *testing.T) {
	planner := application.NewExpiryPlanner()
	gen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	expiry, err := planner.NewAliasWindow(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 180, IsActive: true}, gen, nil)
	require.NoError(t, err)
	assert.Equal(t, gen.AddDate(0, 0, 180), expiry)
}

func TestExpiryPlanner_NewAliasWindow_NonPositiveValidity(t *testing.T) {
	planner := application.NewExpiryPlanner()
	_, err := planner.NewAliasWindow(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 0}, time.Now(), nil)
	require.Error(t, err)
}

// TestExpiryPlanner_NewAliasWindow_OverlapTruncation matches scenario S2: a
// newer alias already exists in the scope, so the candidate window for the
// alias being minted now is truncated to end just before the newer alias's
// generation time, rather than being persisted as an overlapping window.
func TestExpiryPlanner_NewAliasWindow_OverlapTruncation(t *testing.T) {
	planner := application.NewExpiryPlanner()

	gen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := []models.KeyAlias{
		{
			ApplicationID:     "KERNEL",
			Alias:             "a1",
			KeyGenerationTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			KeyExpiryTime:     time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	expiry, err := planner.NewAliasWindow(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 365, IsActive: true}, gen, existing)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), expiry)
}

func TestExpiryPlanner_NewAliasWindow_IgnoresAliasesGeneratedBeforeOrAfterTheCandidateWindow(t *testing.T) {
	planner := application.NewExpiryPlanner()

	gen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := []models.KeyAlias{
		// Generated before gen: irrelevant to a window starting at gen.
		{
			ApplicationID:     "KERNEL",
			Alias:             "older",
			KeyGenerationTime: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			KeyExpiryTime:     time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		// Generated well after the untruncated candidate expires: irrelevant.
		{
			ApplicationID:     "KERNEL",
			Alias:             "muchLater",
			KeyGenerationTime: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
			KeyExpiryTime:     time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	expiry, err := planner.NewAliasWindow(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 180, IsActive: true}, gen, existing)
	require.NoError(t, err)
	assert.Equal(t, gen.AddDate(0, 0, 180), expiry)
}

func TestExpiryPlanner_NewAliasWindow_TruncatesToTheEarliestOverlappingAlias(t *testing.T) {
	planner := application.NewExpiryPlanner()

	gen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := []models.KeyAlias{
		{
			ApplicationID:     "KERNEL",
			Alias:             "later",
			KeyGenerationTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			KeyExpiryTime:     time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ApplicationID:     "KERNEL",
			Alias:             "earlier",
			KeyGenerationTime: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			KeyExpiryTime:     time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	expiry, err := planner.NewAliasWindow(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 365, IsActive: true}, gen, existing)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), expiry)
}

func TestExpiryPlanner_NewAliasWindow_NonPositiveAfterTruncationFails(t *testing.T) {
	planner := application.NewExpiryPlanner()

	gen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := []models.KeyAlias{
		// Generated half a second after gen: truncation would end the new
		// window before it even starts.
		{
			ApplicationID:     "KERNEL",
			Alias:             "almostImmediate",
			KeyGenerationTime: gen.Add(500 * time.Millisecond),
			KeyExpiryTime:     gen.AddDate(0, 0, 1),
		},
	}

	_, err := planner.NewAliasWindow(&models.KeyPolicy{ApplicationID: "KERNEL", ValidityDays: 180, IsActive: true}, gen, existing)
	require.Error(t, err)
}
