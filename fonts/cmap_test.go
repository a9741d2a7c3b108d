package fonts

import "testing"

const toUnicodeCMap = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CMapName /Adobe-Identity-UCS def
/CMapType 2 def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
2 beginbfchar
<0003> <0020>
<0024> <0041>
endbfchar
2 beginbfrange
<0044> <0046> <0061>
<0050> <0051> [<0066006C> <00660069>]
endbfrange
endcmap
CMapName currentdict /CMap defineresource pop
end
end`

func TestParseToUnicode(t *testing.T) {
	cm, err := ParseCMap([]byte(toUnicodeCMap))
	if err != nil {
		t.Fatalf("ParseCMap: %v", err)
	}
	tests := []struct {
		code []byte
		want string
		ok   bool
	}{
		{[]byte{0x00, 0x03}, " ", true},
		{[]byte{0x00, 0x24}, "A", true},
		{[]byte{0x00, 0x44}, "a", true},
		{[]byte{0x00, 0x46}, "c", true},
		{[]byte{0x00, 0x50}, "fl", true},
		{[]byte{0x00, 0x51}, "fi", true},
		{[]byte{0x00, 0x47}, "", false},
	}
	for _, tt := range tests {
		got, ok := cm.Unicode(tt.code)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Unicode(% x) = %q %v, want %q %v", tt.code, got, ok, tt.want, tt.ok)
		}
	}
	if n := cm.NextCode([]byte{0x00, 0x24, 0x00}); n != 2 {
		t.Errorf("NextCode = %d, want 2", n)
	}
}

func TestParseCIDEncoding(t *testing.T) {
	src := `begincmap
/WMode 1 def
2 begincodespacerange
<00> <80>
<8140> <FFFF>
endcodespacerange
1 begincidrange
<8140> <817E> 633
endcidrange
1 begincidchar
<41> 34
endcidchar
endcmap`
	cm, err := ParseCMap([]byte(src))
	if err != nil {
		t.Fatalf("ParseCMap: %v", err)
	}
	if !cm.Vertical {
		t.Error("WMode 1 not detected")
	}
	if n := cm.NextCode([]byte{0x41, 0x81}); n != 1 {
		t.Errorf("NextCode single byte = %d", n)
	}
	if n := cm.NextCode([]byte{0x81, 0x42}); n != 2 {
		t.Errorf("NextCode double byte = %d", n)
	}
	if cid, ok := cm.CID([]byte{0x81, 0x42}); !ok || cid != 635 {
		t.Errorf("CID(8142) = %d %v, want 635", cid, ok)
	}
	if cid, ok := cm.CID([]byte{0x41}); !ok || cid != 34 {
		t.Errorf("CID(41) = %d %v, want 34", cid, ok)
	}
}

func TestParseCMapEmpty(t *testing.T) {
	if _, err := ParseCMap([]byte("begincmap endcmap")); err == nil {
		t.Error("expected error for cmap without mappings")
	}
}
