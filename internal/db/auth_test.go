package db

import (
	"path/filepath"
	"testing"
)

func newTestAuth(t *testing.T) *AuthDatabase {
	t.Helper()
	adb, err := NewAuthDatabase(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("NewAuthDatabase: %v", err)
	}
	t.Cleanup(func() { adb.Close() })
	return adb
}

func TestSeededRoles(t *testing.T) {
	adb := newTestAuth(t)

	roles, err := adb.Roles()
	if err != nil {
		t.Fatalf("Roles: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("roles = %d, want 3", len(roles))
	}

	perms := make(map[string][]string)
	for _, r := range roles {
		perms[r.Name] = r.Permissions
	}
	if len(perms["viewer"]) != 1 || perms["viewer"][0] != "monitor" {
		t.Errorf("viewer permissions = %v", perms["viewer"])
	}
	if len(perms["operator"]) != 2 {
		t.Errorf("operator permissions = %v", perms["operator"])
	}
	if len(perms["admin"]) != 3 {
		t.Errorf("admin permissions = %v", perms["admin"])
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.db")

	first, err := NewAuthDatabase(path)
	if err != nil {
		t.Fatalf("NewAuthDatabase: %v", err)
	}
	first.Close()

	second, err := NewAuthDatabase(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	roles, err := second.Roles()
	if err != nil {
		t.Fatalf("Roles: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("roles after reopen = %d, want 3", len(roles))
	}
}

func TestTokenPermissions(t *testing.T) {
	adb := newTestAuth(t)

	cases := []struct {
		role      string
		monitor   bool
		control   bool
		configure bool
	}{
		{"viewer", true, false, false},
		{"operator", true, true, false},
		{"admin", true, true, true},
	}

	for _, c := range cases {
		token, err := adb.CreateToken("test-"+c.role, c.role)
		if err != nil {
			t.Fatalf("CreateToken(%s): %v", c.role, err)
		}
		if len(token) != 64 {
			t.Fatalf("token length = %d, want 64", len(token))
		}

		role, found, err := adb.TokenRole(token)
		if err != nil {
			t.Fatalf("TokenRole: %v", err)
		}
		if !found || role != c.role {
			t.Fatalf("TokenRole = (%q, %v), want (%q, true)", role, found, c.role)
		}

		checks := map[string]bool{
			"monitor":   c.monitor,
			"control":   c.control,
			"configure": c.configure,
		}
		for perm, want := range checks {
			got, err := adb.TokenHasPermission(token, perm)
			if err != nil {
				t.Fatalf("TokenHasPermission(%s, %s): %v", c.role, perm, err)
			}
			if got != want {
				t.Errorf("%s has %s = %v, want %v", c.role, perm, got, want)
			}
		}
	}
}

func TestUnknownToken(t *testing.T) {
	adb := newTestAuth(t)

	_, found, err := adb.TokenRole("deadbeef")
	if err != nil {
		t.Fatalf("TokenRole: %v", err)
	}
	if found {
		t.Fatalf("unknown token reported as found")
	}

	ok, err := adb.TokenHasPermission("deadbeef", "monitor")
	if err != nil {
		t.Fatalf("TokenHasPermission: %v", err)
	}
	if ok {
		t.Fatalf("unknown token granted permission")
	}
}

func TestCreateTokenUnknownRole(t *testing.T) {
	adb := newTestAuth(t)

	if _, err := adb.CreateToken("bad", "superuser"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestEnsureAdminToken(t *testing.T) {
	adb := newTestAuth(t)

	token, created, err := adb.EnsureAdminToken()
	if err != nil {
		t.Fatalf("EnsureAdminToken: %v", err)
	}
	if !created || len(token) != 64 {
		t.Fatalf("first call = (%q, %v), want new 64-char token", token, created)
	}

	token, created, err = adb.EnsureAdminToken()
	if err != nil {
		t.Fatalf("EnsureAdminToken second: %v", err)
	}
	if created || token != "" {
		t.Fatalf("second call should not create another token")
	}
}

func TestListAndDeleteTokens(t *testing.T) {
	adb := newTestAuth(t)

	full, err := adb.CreateToken("ci", "viewer")
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if _, err := adb.CreateToken("ops", "operator"); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	tokens, err := adb.ListTokens()
	if err != nil {
		t.Fatalf("ListTokens: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("tokens = %d, want 2", len(tokens))
	}
	if tokens[0].Prefix != full[:8] {
		t.Errorf("prefix = %q, want %q", tokens[0].Prefix, full[:8])
	}
	if len(tokens[0].Prefix) >= 64 {
		t.Errorf("listing leaks full token value")
	}
	if tokens[0].LastUsed != nil {
		t.Errorf("unused token has last_used set")
	}

	if err := adb.TouchToken(full); err != nil {
		t.Fatalf("TouchToken: %v", err)
	}
	tokens, err = adb.ListTokens()
	if err != nil {
		t.Fatalf("ListTokens after touch: %v", err)
	}
	if tokens[0].LastUsed == nil {
		t.Errorf("touched token missing last_used")
	}

	if err := adb.DeleteToken(tokens[0].ID); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	tokens, err = adb.ListTokens()
	if err != nil {
		t.Fatalf("ListTokens after delete: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("tokens after delete = %d, want 1", len(tokens))
	}

	if err := adb.DeleteToken(9999); err == nil {
		t.Fatalf("expected error deleting unknown token")
	}
}
