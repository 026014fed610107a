package app

import (
	"errors"
	"testing"

	"snapkeep/internal/snap"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "Restore",
			parameters: "index=2 target=/tmp/out",
		},
		{
			name:       "empty parameters",
			operation:  "Scan",
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
			if op.Status != snap.StatusSuccess {
				t.Errorf("Status = %q, want %q", op.Status, snap.StatusSuccess)
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
	t.Run("success keeps archive", func(t *testing.T) {
		op := NewOperation("Scan", "")
		if err := op.Record("MyGame_20240101_120000", nil); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if op.Status != snap.StatusSuccess {
			t.Errorf("Status = %q, want %q", op.Status, snap.StatusSuccess)
		}
		if op.ArchiveID != "MyGame_20240101_120000" {
			t.Errorf("ArchiveID = %q, want MyGame_20240101_120000", op.ArchiveID)
		}
	})

	t.Run("failure marks error", func(t *testing.T) {
		op := NewOperation("Restore", "")
		boom := errors.New("boom")
		if err := op.Record("ignored", boom); !errors.Is(err, boom) {
			t.Fatalf("Record() error = %v, want %v", err, boom)
		}
		if op.Status != snap.StatusError {
			t.Errorf("Status = %q, want %q", op.Status, snap.StatusError)
		}
		if op.ArchiveID != "" {
			t.Errorf("ArchiveID = %q, want empty", op.ArchiveID)
		}
	})
}
