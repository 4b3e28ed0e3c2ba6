package store

import (
	"strings"
	"testing"
	"testing/fstest"

	dbfiles "resumekit/api/db"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	migrations, err := LoadMigrations(dbfiles.Migrations())
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no migrations discovered")
	}
	if !strings.Contains(migrations[0].Up, "CREATE TABLE records") {
		t.Fatalf("first migration should create the records table")
	}
}

func TestLoadMigrations(t *testing.T) {
	tests := []struct {
		name     string
		files    fstest.MapFS
		wantErr  string
		wantVers []string
	}{
		{
			name: "sorted by version",
			files: fstest.MapFS{
				"0002_more.up.sql":   {Data: []byte("SELECT 2")},
				"0002_more.down.sql": {Data: []byte("SELECT -2")},
				"0001_init.up.sql":   {Data: []byte("SELECT 1")},
				"0001_init.down.sql": {Data: []byte("SELECT -1")},
				"README.md":          {Data: []byte("ignored")},
			},
			wantVers: []string{"0001", "0002"},
		},
		{
			name: "missing down",
			files: fstest.MapFS{
				"0001_init.up.sql": {Data: []byte("SELECT 1")},
			},
			wantErr: "both up and down",
		},
		{
			name: "duplicate up",
			files: fstest.MapFS{
				"0001_init.up.sql":  {Data: []byte("SELECT 1")},
				"0001_other.up.sql": {Data: []byte("SELECT 1")},
			},
			wantErr: "duplicate up",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadMigrations(tt.files)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadMigrations: %v", err)
			}
			if len(got) != len(tt.wantVers) {
				t.Fatalf("expected %d migrations, got %+v", len(tt.wantVers), got)
			}
			for i, m := range got {
				if m.Version != tt.wantVers[i] {
					t.Fatalf("migration %d: expected version %s, got %s", i, tt.wantVers[i], m.Version)
				}
			}
			if got[0].Name != "0001_init.up.sql" || got[0].Down != "SELECT -1" {
				t.Fatalf("unexpected first migration %+v", got[0])
			}
		})
	}
}
