package app

import (
	"errors"
	"testing"

	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "backup",
			parameters: "/data/data/com.example.app",
		},
		{
			name:       "empty parameters",
			operation:  "clear",
			parameters: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters)

			if op.Operation != tt.operation {
				t.Errorf("Operation = %q, want %q", op.Operation, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Result.Status != model.StatusSuccess {
				t.Errorf("Status = %q, want %q", op.Result.Status, model.StatusSuccess)
			}
			if op.ID != 0 {
				t.Errorf("ID = %d, want 0", op.ID)
			}
		})
	}
}

func TestOperation_Persisted(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{name: "not persisted when ID is 0", id: 0, want: false},
		{name: "persisted when ID is positive", id: 1, want: true},
		{name: "persisted when ID is large", id: 99999, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Operation{ID: tt.id}
			if got := op.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_Record(t *testing.T) {
	t.Run("success keeps status", func(t *testing.T) {
		op := NewOperation("backup", "")
		op.Record(mirror.CopyStats{Files: 3, Bytes: 120}, nil)
		if op.Result.Status != model.StatusSuccess || op.Result.Files != 3 || op.Result.Bytes != 120 {
			t.Errorf("Result = %+v", op.Result)
		}
	})

	t.Run("failure sets error", func(t *testing.T) {
		op := NewOperation("restore", "")
		op.Record(mirror.CopyStats{Files: 1}, errors.New("copy /data/x: short copy"))
		if op.Result.Status != model.StatusError {
			t.Errorf("Status = %q, want %q", op.Result.Status, model.StatusError)
		}
		if op.Result.Error != "copy /data/x: short copy" {
			t.Errorf("Error = %q", op.Result.Error)
		}
		if op.Result.Files != 1 {
			t.Errorf("Files = %d, want 1", op.Result.Files)
		}
	})

	t.Run("nil error does not clear a failure", func(t *testing.T) {
		op := NewOperation("clear", "")
		op.Fail(errors.New("boom"))
		op.Fail(nil)
		if op.Result.Status != model.StatusError {
			t.Errorf("Status = %q, want %q", op.Result.Status, model.StatusError)
		}
	})
}
