package filter

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*.txt", "a.txt", true},
		{"*.txt", "a.csv", false},
		{"a?c", "abc", true},
		{"a?c", "ac", false},
		{"*", "anything", true},
		{"*", "", true},
		{"a*c*e", "abcde", true},
		{"a*c*e", "abcd", false},
		{"!*.tmp", "a.txt", true},
		{"!*.tmp", "a.tmp", false},
		{"report_??.csv", "report_01.csv", true},
		{"report_??.csv", "report_001.csv", false},
		{"exact.txt", "exact.txt", true},
		{"exact.txt", "exact2.txt", false},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.name); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}

func TestMatchesANDsInverseAndORsPositive(t *testing.T) {
	list := []string{"*.txt", "!secret*"}
	if !Matches(list, "report.txt") {
		t.Error("expected report.txt to match")
	}
	if Matches(list, "secret.txt") {
		t.Error("expected secret.txt to be rejected by inverse pattern")
	}
	if Matches(list, "report.csv") {
		t.Error("expected report.csv to not match *.txt")
	}
}

func TestMatchesEmptyListNeverMatches(t *testing.T) {
	if Matches(nil, "anything") {
		t.Error("empty file_list should match nothing")
	}
}
