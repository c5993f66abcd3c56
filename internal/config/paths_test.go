package config

import "testing"

func TestJoinLocator(t *testing.T) {
	tests := []struct {
		base  string
		parts []string
		want  string
	}{
		{`\\Arctic\Data\a.mdb`, []string{"Reference", "Photograph"}, `\\Arctic\Data\a.mdb\Reference\Photograph`},
		{`C:\Temp\`, []string{`\x.gdb`}, `C:\Temp\x.gdb`},
		{"", []string{"a", "", "b"}, `a\b`},
		{`\\Arctic`, nil, `\\Arctic`},
	}
	for _, tt := range tests {
		if got := JoinLocator(tt.base, tt.parts...); got != tt.want {
			t.Errorf("JoinLocator(%q, %v) = %q, want %q", tt.base, tt.parts, got, tt.want)
		}
	}
}

func TestSdeChain(t *testing.T) {
	got := SdeChain(`C:\conn.sde`, "WaterUtility/Casing", "sdeVector", "sdeDataOwner")
	want := `C:\conn.sde\sdeVector.sdeDataOwner.WaterUtility\sdeVector.sdeDataOwner.Casing`
	if got != want {
		t.Errorf("SdeChain = %q, want %q", got, want)
	}
	if got := SdeChain(`C:\conn.sde`, "v_Fireflow", "sdeVector", "sdeDataOwner"); got != `C:\conn.sde\sdeVector.sdeDataOwner.v_Fireflow` {
		t.Errorf("SdeChain top-level = %q", got)
	}
}

func TestMdbChain(t *testing.T) {
	if got := MdbChain(`\\Arctic\b.mdb`, `WaterUtility\v_Fireflow`); got != `\\Arctic\b.mdb\WaterUtility\v_Fireflow` {
		t.Errorf("MdbChain = %q", got)
	}
}

func TestSplitLocator(t *testing.T) {
	tests := []struct {
		in, parent, leaf string
	}{
		{`\\Arctic\Data\MainBrks.shp`, `\\Arctic\Data`, "MainBrks.shp"},
		{"plain", "", "plain"},
		{`C:\Temp\b.mdb\Reference`, `C:\Temp\b.mdb`, "Reference"},
	}
	for _, tt := range tests {
		p, l := SplitLocator(tt.in)
		if p != tt.parent || l != tt.leaf {
			t.Errorf("SplitLocator(%q) = %q, %q; want %q, %q", tt.in, p, l, tt.parent, tt.leaf)
		}
	}
}

func TestSplitExt(t *testing.T) {
	tests := []struct{ in, base, ext string }{
		{"MainBrks.shp", "MainBrks", ".shp"},
		{"noext", "noext", ""},
		{".hidden", ".hidden", ""},
		{"a.b.mdb", "a.b", ".mdb"},
	}
	for _, tt := range tests {
		b, e := SplitExt(tt.in)
		if b != tt.base || e != tt.ext {
			t.Errorf("SplitExt(%q) = %q, %q", tt.in, b, e)
		}
	}
}
