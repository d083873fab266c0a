package archive

import (
	"path/filepath"
	"testing"
)

func TestDestPath(t *testing.T) {
	root := "/backups/app"
	tests := []struct {
		name    string
		entry   string
		want    string
		wantErr bool
	}{
		{name: "file", entry: "files/a.txt", want: filepath.Join(root, "files", "a.txt")},
		{name: "directory with slash", entry: "files/", want: filepath.Join(root, "files")},
		{name: "inner dot dot stays inside", entry: "files/../prefs.xml", want: filepath.Join(root, "prefs.xml")},
		{name: "empty", entry: "", wantErr: true},
		{name: "absolute", entry: "/etc/passwd", wantErr: true},
		{name: "parent", entry: "..", wantErr: true},
		{name: "escape", entry: "../other/x", wantErr: true},
		{name: "nested escape", entry: "files/../../x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := destPath(root, tt.entry)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("destPath(%q) = %q, want error", tt.entry, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("destPath(%q) error = %v", tt.entry, err)
			}
			if got != tt.want {
				t.Errorf("destPath(%q) = %q, want %q", tt.entry, got, tt.want)
			}
		})
	}
}

func TestManifestDecode(t *testing.T) {
	m := &Manifest{AppID: "app", Version: 2, Checksum: "abc", Files: 1}
	data, err := m.encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeManifest(data)
	if err != nil {
		t.Fatalf("decodeManifest() error = %v", err)
	}
	if got.Checksum != "abc" || got.Version != 2 {
		t.Errorf("decoded %+v", got)
	}

	if _, err := decodeManifest([]byte(`{"app_id":"app"}`)); err == nil {
		t.Error("expected error for manifest without checksum")
	}
	if _, err := decodeManifest([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
