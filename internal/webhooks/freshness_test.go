package webhooks

import (
	"strconv"
	"testing"
	"time"
)

func TestCheckFreshness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	skew := 5 * time.Minute

	millis := func(t time.Time) string {
		return strconv.FormatInt(t.UnixMilli(), 10)
	}

	tests := []struct {
		name   string
		header string
		want   FreshnessResult
	}{
		{"exactly now", millis(now), FreshnessOK},
		{"just inside past window", millis(now.Add(-skew + time.Second)), FreshnessOK},
		{"just inside future window", millis(now.Add(skew - time.Second)), FreshnessOK},
		{"window boundary past", millis(now.Add(-skew)), FreshnessOK},
		{"window boundary future", millis(now.Add(skew)), FreshnessOK},
		{"too old", millis(now.Add(-skew - time.Second)), FreshnessStale},
		{"too new", millis(now.Add(skew + time.Second)), FreshnessFuture},
		{"missing header", "", FreshnessMissing},
		{"garbage header", "not-a-timestamp", FreshnessMissing},
		{"seconds instead of millis reads as 1970", "1774526400", FreshnessStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckFreshness(tt.header, now, skew); got != tt.want {
				t.Errorf("CheckFreshness(%q) = %s, want %s", tt.header, got, tt.want)
			}
		})
	}
}
