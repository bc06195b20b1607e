package doctree

import "testing"

func TestRouteCode(t *testing.T) {
	tests := []struct {
		name string
		num  int
		code string
		ok   bool
	}{
		{"L0459.docx", 459, "L0459", true},
		{"/in/L0459_formatted.docx", 459, "L0459", true},
		{"L12-东沟", 12, "L12", true},
		{"路线L0007素描图.png", 7, "L0007", true},
		{"L/L0001/x.docx", 0, "", false},
		{"Lake.docx", 0, "", false},
	}
	for _, tt := range tests {
		num, code, ok := RouteCode(tt.name)
		if num != tt.num || code != tt.code || ok != tt.ok {
			t.Errorf("RouteCode(%q): expected %d %q %v, got %d %q %v", tt.name, tt.num, tt.code, tt.ok, num, code, ok)
		}
	}
}

func TestRouteHeaderInfo_Title(t *testing.T) {
	got, ok := RouteHeaderInfo{RouteNumber: "L0459", Points: []string{"D001", "D002", "D003"}}.Title()
	if !ok || got != "L0459 (D001-D003)" {
		t.Errorf("expected %q, got %q (%v)", "L0459 (D001-D003)", got, ok)
	}
	if _, ok := (RouteHeaderInfo{RouteNumber: "L0459"}).Title(); ok {
		t.Error("expected no title without points")
	}
}

func TestLabelString(t *testing.T) {
	if got := GeoPointNumber.String(); got != "GeoPointNumber" {
		t.Errorf("expected %q, got %q", "GeoPointNumber", got)
	}
	if got := Label(99).String(); got != "Label(99)" {
		t.Errorf("expected %q, got %q", "Label(99)", got)
	}
}
