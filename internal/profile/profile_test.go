package profile_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/careloop/patient-email-api/internal/profile"
)

func TestPreferredAddressPrimaryByDefault(t *testing.T) {
	p := profile.Profile{
		Email:          "primary@example.com",
		SecondaryEmail: "secondary@example.com",
		Preferred:      profile.PreferredPrimary,
	}
	require.Equal(t, "primary@example.com", p.PreferredAddress())
}

func TestPreferredAddressSecondaryWinsWhenChosenAndSet(t *testing.T) {
	p := profile.Profile{
		Email:          "primary@example.com",
		SecondaryEmail: "secondary@example.com",
		Preferred:      profile.PreferredSecondary,
	}
	require.Equal(t, "secondary@example.com", p.PreferredAddress())
}

func TestPreferredAddressSecondaryChosenButEmptyFallsBack(t *testing.T) {
	p := profile.Profile{
		Email:     "primary@example.com",
		Preferred: profile.PreferredSecondary,
	}
	require.Equal(t, "primary@example.com", p.PreferredAddress())
}

func TestPreferredAddressFallsBackToSecondary(t *testing.T) {
	p := profile.Profile{
		SecondaryEmail: "secondary@example.com",
		Preferred:      profile.PreferredPrimary,
	}
	require.Equal(t, "secondary@example.com", p.PreferredAddress())
}

func TestHasEmailFalseWhenBothEmpty(t *testing.T) {
	p := profile.Profile{Preferred: profile.PreferredPrimary}
	require.False(t, p.HasEmail())
	require.Empty(t, p.PreferredAddress())
}
