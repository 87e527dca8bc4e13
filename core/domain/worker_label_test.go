package domain

import (
	"reflect"
	"strings"
	"testing"
)

func testCatalog() LabelCatalog {
	return LabelCatalog{
		{Name: "Finance", Description: "Bills and invoices", Reasons: []string{"invoice due", "receipt"}},
		{Name: "Newsletters"},
		{Name: "Urgent", Description: "Needs action today"},
	}
}

func TestLabelCatalogRender(t *testing.T) {
	got := testCatalog().Render()
	want := strings.Join([]string{
		`- "Finance": Bills and invoices (e.g. invoice due, receipt)`,
		`- "Newsletters"`,
		`- "Urgent": Needs action today`,
	}, "\n")
	if got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestLabelCatalogFilter(t *testing.T) {
	tests := []struct {
		name        string
		in          []string
		wantKept    []string
		wantDropped []string
	}{
		{"all known", []string{"Finance", "Urgent"}, []string{"Finance", "Urgent"}, nil},
		{"unknown dropped", []string{"Finance", "Travel"}, []string{"Finance"}, []string{"Travel"}},
		{"case folded to catalog spelling", []string{"newsletters"}, []string{"Newsletters"}, nil},
		{"duplicates collapse", []string{"Urgent", "urgent", "Urgent"}, []string{"Urgent"}, nil},
		{"empty", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, dropped := testCatalog().Filter(tt.in)
			if !reflect.DeepEqual(kept, tt.wantKept) {
				t.Errorf("kept = %v, want %v", kept, tt.wantKept)
			}
			if !reflect.DeepEqual(dropped, tt.wantDropped) {
				t.Errorf("dropped = %v, want %v", dropped, tt.wantDropped)
			}
		})
	}
}
