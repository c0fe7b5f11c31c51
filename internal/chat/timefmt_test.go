package chat

import (
	"strings"
	"testing"
	"time"
)

func TestFormatDisplay(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			// 08:38 UTC is 01:38 in Los Angeles during DST.
			name: "rfc3339 utc",
			in:   "2025-09-06T08:38:00Z",
			want: "Sat, Sep 6, 01:38",
		},
		{
			name: "rfc3339 with offset",
			in:   "2025-09-06T01:38:00-07:00",
			want: "Sat, Sep 6, 01:38",
		},
		{
			name: "naive iso assumed utc",
			in:   "2025-09-06T08:38:00",
			want: "Sat, Sep 6, 01:38",
		},
		{
			name: "legacy sql form assumed utc",
			in:   "2025-09-06 08:38:00",
			want: "Sat, Sep 6, 01:38",
		},
		{
			name: "single digit day not padded",
			in:   "2025-12-03T20:00:00Z",
			want: "Wed, Dec 3, 12:00",
		},
		{
			name: "unparseable passes through",
			in:   "not a timestamp",
			want: "not a timestamp",
		},
		{
			name: "empty passes through",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDisplay(tt.in); got != tt.want {
				t.Errorf("FormatDisplay(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNowStampRoundTrips(t *testing.T) {
	stamp := NowStamp()
	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		t.Fatalf("NowStamp() = %q, not RFC3339: %v", stamp, err)
	}
	if got := FormatDisplay(stamp); got == stamp || !strings.Contains(got, ",") {
		t.Fatalf("FormatDisplay(NowStamp()) = %q, expected rendered form", got)
	}
}
