package vault

import (
	"context"
	"path/filepath"
	"testing"

	"mirror-go/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.VaultConfig
		wantErr  bool
		wantName string
	}{
		{
			name:     "memory vault",
			cfg:      config.VaultConfig{Type: "memory", Name: "scratch"},
			wantName: "scratch",
		},
		{
			name: "s3 vault",
			cfg: config.VaultConfig{
				Type:              "s3",
				Name:              "offsite",
				S3Bucket:          "backups",
				S3Region:          "eu-west-1",
				S3Endpoint:        "http://localhost:9000",
				S3AccessKeyID:     "AKIDEXAMPLE",
				S3SecretAccessKey: "secret",
			},
			wantName: "offsite",
		},
		{
			name:    "s3 vault without bucket",
			cfg:     config.VaultConfig{Type: "s3", Name: "offsite"},
			wantErr: true,
		},
		{
			name:     "filesystem vault",
			cfg:      config.VaultConfig{Type: "filesystem", Name: "local"},
			wantName: "local",
		},
		{
			name:    "filesystem vault without root",
			cfg:     config.VaultConfig{Type: "filesystem", Name: "local"},
			wantErr: true,
		},
		{
			name:    "unknown vault type",
			cfg:     config.VaultConfig{Type: "ftp", Name: "old"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if tt.name == "filesystem vault" {
				cfg.FSVaultRoot = filepath.Join(t.TempDir(), "vault")
			}

			got, err := NewVaultFromConfig(context.Background(), cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVaultFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got != nil {
					t.Error("NewVaultFromConfig() should return nil on error")
				}
				return
			}
			if got.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", got.Name(), tt.wantName)
			}
		})
	}
}
