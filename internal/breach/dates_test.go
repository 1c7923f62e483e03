package breach

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, time.February, 6, 0, 0, 0, 0, time.UTC)

func TestResolveDiscoveryDateLadder(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"iso date", "The intrusion was detected on 2025-11-03 by staff.", "2025-11-03"},
		{"month day year", "Substack disclosed the breach on January 15, 2026.", "2026-01-15"},
		{"ordinal day", "Attackers got in on March 3rd, 2025 via a VPN.", "2025-03-03"},
		{"day month year", "On 7 October 2025 the ministry confirmed the leak.", "2025-10-07"},
		{"month and year", "The breach occurred in October 2025.", "2025-10-15"},
		{"abbreviated month and year", "Detected in Sept. 2025 during an audit.", "2025-09-15"},
		{"month only", "Hackers accessed the systems in January.", "2026-01-15"},
		{"may with preposition", "The data was stolen in May.", "2026-05-15"},
		{"yesterday", "The company said yesterday that records were exposed.", "2026-02-05"},
		{"days ago", "The database was found three days ago.", "2026-02-03"},
		{"numeric weeks ago", "Leaked 2 weeks ago on a forum.", "2026-01-23"},
		{"last month", "The retailer was breached last month.", "2026-01-15"},
		{"months ago", "Six months ago the firm noticed odd logins.", "2025-08-15"},
		{"last year", "Intruders lurked since last year.", "2025-02-06"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveDiscoveryDate(tc.text, today)
			require.NotNil(t, got, "expected a date for %q", tc.text)
			assert.Equal(t, tc.want, got.Format(DateLayout))
		})
	}
}

func TestResolveDiscoveryDateNoReference(t *testing.T) {
	for _, text := range []string{
		"Hackers stole customer emails and passwords from the retailer.",
		"Users may want to reset their passwords.",
		"",
	} {
		assert.Nil(t, ResolveDiscoveryDate(text, today), "text %q", text)
	}
}

func TestResolveDiscoveryDatePrefersExactOverMonth(t *testing.T) {
	got := ResolveDiscoveryDate("Reported in October 2025, the breach began on September 2, 2025.", today)
	require.NotNil(t, got)
	assert.Equal(t, "2025-09-02", got.Format(DateLayout))
}

func TestResolveDiscoveryDateRejectsImpossibleDay(t *testing.T) {
	got := ResolveDiscoveryDate("Logged on February 30, 2025.", today)
	require.NotNil(t, got)
	assert.Equal(t, "2025-02-15", got.Format(DateLayout))
}

func TestResolveDiscoveryDateThisMonthNotInFuture(t *testing.T) {
	early := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	got := ResolveDiscoveryDate("The incident was disclosed earlier this month.", early)
	require.NotNil(t, got)
	assert.Equal(t, "2026-03-02", got.Format(DateLayout))
}

func TestResolveDiscoveryDateLastMonthNameNotInFuture(t *testing.T) {
	october := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		text string
		want string
	}{
		{"The intrusion happened last December.", "2025-12-15"},
		{"The intrusion happened last October.", "2025-10-15"},
		{"Attackers were inside last March.", "2026-03-15"},
		{"Logs show access since November.", "2025-11-15"},
		{"This December the firm found the leak.", "2025-12-15"},
		{"Staff noticed since September.", "2026-09-15"},
		{"The leak started in December.", "2026-12-15"},
	}
	for _, tc := range tests {
		got := ResolveDiscoveryDate(tc.text, october)
		require.NotNil(t, got, "text %q", tc.text)
		assert.Equal(t, tc.want, got.Format(DateLayout), "text %q", tc.text)
	}
}

func TestParseISODate(t *testing.T) {
	d, err := ParseISODate("2025-10-15")
	require.NoError(t, err)
	assert.Equal(t, time.October, d.Month())

	for _, bad := range []string{"October 2025", "2025/10/15", "15-10-2025", "2025-13-01", "last month"} {
		_, err := ParseISODate(bad)
		assert.ErrorIs(t, err, ErrValidation, "input %q", bad)
	}
}
