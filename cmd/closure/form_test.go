package main

import (
	"testing"

	"github.com/yourorg/fire-closure/pkg/form"
)

func TestChosen(t *testing.T) {
	tests := []struct {
		name   string
		value  form.Value
		option string
		want   bool
	}{
		{"nil", nil, "a", false},
		{"select match", form.Choice{Value: "a"}, "a", true},
		{"select other", form.Choice{Value: "b"}, "a", false},
		{"multiselect match", form.MultiChoice{{Value: "b"}, {Value: "a"}}, "a", true},
		{"multiselect miss", form.MultiChoice{{Value: "b"}}, "a", false},
		{"scalar", form.Scalar{V: "a"}, "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chosen(tt.value, tt.option); got != tt.want {
				t.Fatalf("chosen() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindField(t *testing.T) {
	tpl := &form.Template{Sections: []form.Section{
		{ID: "s1", Fields: []form.Field{{ID: "f1"}, {ID: "f2"}}},
		{ID: "s2", Fields: []form.Field{{ID: "f3"}}},
	}}

	if f, ok := findField(tpl, "f3"); !ok || f.ID != "f3" {
		t.Fatalf("findField(f3) = %+v, %v", f, ok)
	}
	if _, ok := findField(tpl, "missing"); ok {
		t.Fatal("expected missing field not to be found")
	}
	if _, ok := findField(nil, "f1"); ok {
		t.Fatal("expected nil template to find nothing")
	}
}
