package orchestrator

import (
	"testing"

	"github.com/quantarax/relay/internal/protocol"
)

func TestFirstInvalidDescriptorAcceptsAllGood(t *testing.T) {
	dir := t.TempDir()
	files := []protocol.FileDescriptor{
		{Name: "a.txt", Size: 10},
		{Name: "b.txt", Size: 20, RelativePath: "sub/b.txt"},
	}
	if name, err := firstInvalidDescriptor(dir, files); err != nil {
		t.Fatalf("firstInvalidDescriptor(%q) = %v, want nil", name, err)
	}
}

func TestFirstInvalidDescriptorStopsAtFirstBadOne(t *testing.T) {
	dir := t.TempDir()
	files := []protocol.FileDescriptor{
		{Name: "good1.txt", Size: 1},
		{Name: "good2.txt", Size: 1},
		{Name: "escape.txt", Size: 1, RelativePath: "../escape.txt"},
		{Name: "never-checked.txt", Size: 1, RelativePath: "../../also-bad.txt"},
	}
	name, err := firstInvalidDescriptor(dir, files)
	if err == nil {
		t.Fatal("expected an error for a path-traversal descriptor")
	}
	if name != "escape.txt" {
		t.Fatalf("firstInvalidDescriptor reported %q, want the first bad descriptor escape.txt", name)
	}
}

func TestFirstInvalidDescriptorEmptyOfferIsValid(t *testing.T) {
	if name, err := firstInvalidDescriptor(t.TempDir(), nil); err != nil {
		t.Fatalf("firstInvalidDescriptor(nil) = (%q, %v), want (\"\", nil)", name, err)
	}
}
