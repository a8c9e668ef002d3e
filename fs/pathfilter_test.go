package fs

import "testing"

func TestPathFilterIsExcluded(t *testing.T) {
	filter := NewPathFilter([]string{"app/", ".mnemo/"})

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"regular file", "notes/todo.md", false},
		{"regular nested", "photos/2026/trip.jpg", false},

		// Configured prefixes
		{"app prefix", "app/cache/x.bin", true},
		{"mnemo prefix", ".mnemo/database.sqlite", true},
		{"prefix not at start", "docs/app/readme.md", false},

		// Hidden
		{"hidden file", ".secret", true},
		{"hidden dir component", "notes/.git/config", true},

		// Backup and temp
		{"tilde prefix", "~lock.docx", true},
		{"tilde suffix", "draft.md~", true},
		{"bak suffix", "notes.bak", true},
		{"swp suffix", "notes.swp", true},
		{"partial download", "video.part", true},

		// OS junk
		{"resource fork", "photos/._IMG_1.jpg", true},
		{"office lock", "~$report.docx", true},
		{"thumbs", "photos/Thumbs.db", true},
		{"desktop ini", "Desktop.ini", true},

		// Dependencies
		{"node_modules", "project/node_modules/pkg/index.js", true},
		{"pycache", "scripts/__pycache__/mod.pyc", true},

		// Near misses
		{"bak in name", "bakery-recipe.md", false},
		{"tmp in name", "template.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter.IsExcluded(tt.path); got != tt.want {
				t.Errorf("IsExcluded(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestPathFilterNoPrefixes(t *testing.T) {
	filter := NewPathFilter(nil)

	if filter.IsExcluded("notes/todo.md") {
		t.Error("regular path should not be excluded without prefixes")
	}
	if !filter.IsExcluded(".hidden") {
		t.Error("junk patterns should still apply without prefixes")
	}
}
