package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("version should not be empty")
	}
	if strings.ContainsAny(v, " \n\t") {
		t.Errorf("version %q should be trimmed", v)
	}
}

func TestFull_UsesCommit(t *testing.T) {
	old := commit
	t.Cleanup(func() { commit = old })

	commit = "0123456789abcdef0123"
	if got, want := Full(), Get()+" (0123456789ab)"; got != want {
		t.Errorf("Full() = %q, want %q", got, want)
	}
}
