package store

import "testing"

func TestMigrationURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/app":                 "postgres://u:p@db:5432/app?x-migrations-table=promoledger_schema_migrations",
		"postgres://u:p@db:5432/app?sslmode=disable": "postgres://u:p@db:5432/app?sslmode=disable&x-migrations-table=promoledger_schema_migrations",
	}
	for in, want := range cases {
		if got := migrationURL(in); got != want {
			t.Fatalf("migrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}
