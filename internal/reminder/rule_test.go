package reminder

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestBuildCronExpr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		days   []int
		hour   int
		minute int
		want   string
	}{
		{name: "weekdays standup", days: []int{1, 2, 3, 4, 5}, hour: 9, minute: 0, want: "0 9 * * 1,2,3,4,5"},
		{name: "unsorted input", days: []int{5, 1, 3}, hour: 14, minute: 30, want: "30 14 * * 1,3,5"},
		{name: "single day", days: []int{0}, hour: 23, minute: 59, want: "59 23 * * 0"},
		{name: "unpadded", days: []int{6}, hour: 7, minute: 5, want: "5 7 * * 6"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCronExpr(tt.days, tt.hour, tt.minute)
			if got != tt.want {
				t.Fatalf("BuildCronExpr = %q, want %q", got, tt.want)
			}
		})
	}
}

// The expression must round-trip through the cron parser the scheduler
// actually uses: same minute, hour, and day set.
func TestBuildCronExprRoundTrip(t *testing.T) {
	t.Parallel()
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	days := []int{1, 3, 5}
	expr := BuildCronExpr(days, 9, 15)
	sched, err := parser.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}

	// Walk a full week of firings and collect what the parser produces.
	loc := time.UTC
	cur := time.Date(2024, 12, 1, 0, 0, 0, 0, loc) // a Sunday
	seen := map[time.Weekday]bool{}
	for i := 0; i < 7; i++ {
		cur = sched.Next(cur)
		if got, want := cur.Hour(), 9; got != want {
			t.Fatalf("hour = %d, want %d", got, want)
		}
		if got, want := cur.Minute(), 15; got != want {
			t.Fatalf("minute = %d, want %d", got, want)
		}
		seen[cur.Weekday()] = true
	}
	for _, d := range days {
		if !seen[time.Weekday(d)] {
			t.Fatalf("weekday %d never fired; saw %v", d, seen)
		}
	}
	if len(seen) != len(days) {
		t.Fatalf("fired on %d distinct weekdays, want %d (%v)", len(seen), len(days), seen)
	}
}

func TestValidTime(t *testing.T) {
	t.Parallel()
	valid := []string{"00:00", "09:00", "14:30", "23:59"}
	for _, s := range valid {
		if !ValidTime(s) {
			t.Errorf("ValidTime(%q) = false, want true", s)
		}
	}
	invalid := []string{"24:00", "12:60", "9:00", "09:0", "0900", "ab:cd", "", "09:00:00"}
	for _, s := range invalid {
		if ValidTime(s) {
			t.Errorf("ValidTime(%q) = true, want false", s)
		}
	}
}

func TestValidDays(t *testing.T) {
	t.Parallel()
	if !ValidDays([]int{0, 6}) {
		t.Error("ValidDays([0 6]) = false")
	}
	if ValidDays(nil) {
		t.Error("ValidDays(nil) = true")
	}
	if ValidDays([]int{7}) {
		t.Error("ValidDays([7]) = true")
	}
	if ValidDays([]int{-1}) {
		t.Error("ValidDays([-1]) = true")
	}
}

func TestParseDays(t *testing.T) {
	t.Parallel()
	days, err := ParseDays("5,1,3,1")
	if err != nil {
		t.Fatalf("ParseDays: %v", err)
	}
	if len(days) != 3 || days[0] != 1 || days[1] != 3 || days[2] != 5 {
		t.Fatalf("ParseDays = %v, want [1 3 5]", days)
	}

	for _, bad := range []string{"", "a", "1,8", "1,,2", "-1"} {
		if _, err := ParseDays(bad); err == nil {
			t.Errorf("ParseDays(%q) succeeded, want error", bad)
		}
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	loc := time.UTC

	d, err := ParseDate("2024-12-25", loc)
	if err != nil {
		t.Fatalf("ParseDate ISO: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.December || d.Day() != 25 {
		t.Fatalf("ParseDate ISO = %v", d)
	}

	d, err = ParseDate("25-12-2024", loc)
	if err != nil {
		t.Fatalf("ParseDate DMY: %v", err)
	}
	if d.Day() != 25 || d.Month() != time.December {
		t.Fatalf("ParseDate DMY = %v", d)
	}

	for _, bad := range []string{"2024/12/25", "25 Dec 2024", "2024-13-01", "2024-02-30", "31-02-2024", ""} {
		if _, err := ParseDate(bad, loc); err == nil {
			t.Errorf("ParseDate(%q) succeeded, want error", bad)
		}
	}
}

func TestCombineDateTime(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	date, _ := ParseDate("2024-12-25", loc)
	got, err := CombineDateTime(date, "09:30", loc)
	if err != nil {
		t.Fatalf("CombineDateTime: %v", err)
	}
	want := time.Date(2024, 12, 25, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("CombineDateTime = %v, want %v", got, want)
	}

	if _, err := CombineDateTime(date, "25:00", loc); err == nil {
		t.Fatal("expected error for invalid clock time")
	}
}

func TestDaysToNames(t *testing.T) {
	t.Parallel()
	if got := DaysToNames([]int{1, 5}); got != "Monday, Friday" {
		t.Fatalf("DaysToNames = %q", got)
	}
}
