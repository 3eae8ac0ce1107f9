package types

import "testing"

func TestRepoID(t *testing.T) {
	repo := Repo{Remote: "github", Owner: "acme", Name: "widgets", Branch: "main"}
	if got := repo.ID(); got != "github:main:acme/widgets" {
		t.Errorf("unexpected repo ID: %s", got)
	}
	if got := repo.FullName(); got != "acme/widgets" {
		t.Errorf("unexpected full name: %s", got)
	}
}

func TestParseIndexStatus(t *testing.T) {
	cases := []struct {
		in   string
		want IndexStatus
	}{
		{"submitted", StatusSubmitted},
		{"cloning", StatusCloning},
		{"processing", StatusProcessing},
		{"completed", StatusCompleted},
		{"failed", StatusFailed},
		{"COMPLETED", StatusCompleted},
		{"  processing ", StatusProcessing},
		{"", StatusUnindexed},
		{"reticulating", StatusUnexpected},
	}
	for _, tc := range cases {
		if got := ParseIndexStatus(tc.in); got != tc.want {
			t.Errorf("ParseIndexStatus(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIndexStatusTerminal(t *testing.T) {
	terminal := []IndexStatus{StatusCompleted, StatusFailed, StatusError}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
	nonTerminal := []IndexStatus{StatusUnindexed, StatusSubmitted, StatusCloning, StatusProcessing, StatusUnexpected}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
}

func TestQueryClassDefaults(t *testing.T) {
	if ClassQuery.DefaultLimit() != 5 {
		t.Errorf("query default = %d", ClassQuery.DefaultLimit())
	}
	if ClassSmartQuery.DefaultLimit() != 1 {
		t.Errorf("smart query default = %d", ClassSmartQuery.DefaultLimit())
	}
	if ClassSearch.DefaultLimit() != 10 {
		t.Errorf("search default = %d", ClassSearch.DefaultLimit())
	}
	if !ClassSmartQuery.Genius() {
		t.Error("smart query should be genius")
	}
	if ClassQuery.Genius() || ClassSearch.Genius() {
		t.Error("only smart query should be genius")
	}
}

func TestRoleOrdering(t *testing.T) {
	if !RoleOwner.AtLeast(RoleAdmin) || !RoleAdmin.AtLeast(RoleUser) {
		t.Error("role ordering broken")
	}
	if RoleNone.AtLeast(RoleUser) {
		t.Error("an unwhitelisted user must not pass any gate")
	}
	if RoleUser.AtLeast(RoleAdmin) {
		t.Error("user should not satisfy admin")
	}
	if ParseRole("admin") != RoleAdmin || ParseRole("OWNER") != RoleOwner || ParseRole("bogus") != RoleUser {
		t.Error("ParseRole mapping broken")
	}
}
