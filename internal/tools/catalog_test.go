package tools

import (
	"testing"
)

func TestBuiltins(t *testing.T) {
	specs := Builtins()

	expected := []string{RequestUserInput, MarkTaskComplete, UpdateTaskProgress, WriteEventFile}
	if len(specs) != len(expected) {
		t.Fatalf("Builtins count = %d, want %d", len(specs), len(expected))
	}

	for i, name := range expected {
		if specs[i].Name != name {
			t.Errorf("Builtins[%d].Name = %q, want %q", i, specs[i].Name, name)
		}
		if specs[i].Description == "" {
			t.Errorf("Builtins[%d] has empty description", i)
		}
		for _, req := range specs[i].InputSchema.Required {
			if _, ok := specs[i].InputSchema.Properties[req]; !ok {
				t.Errorf("%s: required field %q missing from properties", name, req)
			}
		}
	}

	if err := Validate(specs); err != nil {
		t.Errorf("Validate(Builtins()) = %v", err)
	}
}

func TestIsBuiltin(t *testing.T) {
	for _, name := range BuiltinNames() {
		if !IsBuiltin(name) {
			t.Errorf("IsBuiltin(%q) = false", name)
		}
	}
	if IsBuiltin("send_email") {
		t.Error("IsBuiltin(send_email) = true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		specs   []Spec
		wantErr bool
	}{
		{"empty", nil, false},
		{"ok", []Spec{{Name: "a"}, {Name: "b_c-d"}}, false},
		{"duplicate", []Spec{{Name: "a"}, {Name: "a"}}, true},
		{"space", []Spec{{Name: "bad name"}}, true},
		{"empty name", []Spec{{Name: ""}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.specs)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"guest-list.md", "guest-list.md"},
		{"../../etc/passwd", "etcpasswd.md"},
		{"a\\b.txt", "ab.txt"},
		{"notes.exe", "notes.md"},
		{"report", "report.md"},
		{"Vendor Comparison.CSV", "Vendor-Comparison.csv"},
		{"schedule.tar.gz", "schedule.tar.md"},
		{"budget.json", "budget.json"},
		{"", DefaultFilename},
		{"...", DefaultFilename},
		{"/", DefaultFilename},
		{"menu (final)!.txt", "menu-final.txt"},
		{"a*b?c:d.txt", "abcd.txt"},
		{"café plan.md", "caf-plan.md"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename_NoSeparators(t *testing.T) {
	inputs := []string{"a/b/c.md", "..\\..\\x.txt", "/abs/path.csv", "dir/../up.json"}
	for _, in := range inputs {
		got := SanitizeFilename(in)
		for _, r := range got {
			if r == '/' || r == '\\' {
				t.Errorf("SanitizeFilename(%q) = %q contains a separator", in, got)
			}
		}
	}
}
