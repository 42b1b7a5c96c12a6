package auth

import (
	"testing"
	"time"

	"rollbook/internal/roster"
)

func TestIssueParseRoundTrip(t *testing.T) {
	usr := roster.User{ID: "u1", Username: "t1", Role: roster.RoleTeacher}

	tokens, err := Issue(usr, "teacher-1", "rollbook", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := Parse(tokens.AccessToken, "secret", "rollbook")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "u1" || claims.Username != "t1" {
		t.Errorf("claims identity = (%s, %s)", claims.Subject, claims.Username)
	}
	if claims.Role != roster.RoleTeacher || claims.TeacherID != "teacher-1" {
		t.Errorf("claims role = (%s, %s)", claims.Role, claims.TeacherID)
	}
}

func TestParseRejections(t *testing.T) {
	usr := roster.User{ID: "u1", Username: "a", Role: roster.RoleAdmin}
	tokens, err := Issue(usr, "", "rollbook", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{name: "garbage token", token: "not-a-token", key: "secret", issuer: "rollbook"},
		{name: "wrong key", token: tokens.AccessToken, key: "other", issuer: "rollbook"},
		{name: "wrong issuer", token: tokens.AccessToken, key: "secret", issuer: "elsewhere"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.token, tt.key, tt.issuer); err == nil {
				t.Error("Parse() accepted an invalid token")
			}
		})
	}
}

func TestParseExpired(t *testing.T) {
	usr := roster.User{ID: "u1", Username: "a", Role: roster.RoleAdmin}
	tokens, err := Issue(usr, "", "rollbook", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := Parse(tokens.AccessToken, "secret", "rollbook"); err == nil {
		t.Error("Parse() accepted an expired token")
	}
}
