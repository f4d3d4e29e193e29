package extract

import "testing"

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Jadwal UTS Semester Genap", "Jadwal UTS Semester Genap"},
		{"whitespace runs", "  Jadwal\n\t UTS   Genap  ", "Jadwal UTS Genap"},
		{"en dash mojibake", "Rapat \u00e2\u20ac\u201c Dosen", "Rapat \u2013 Dosen"},
		{"latin accent mojibake", "Caf\u00c3\u00a9 Kampus", "Caf\u00e9 Kampus"},
		{"nbsp mojibake", "Libur\u00c2\u00a0Nasional", "Libur Nasional"},
		{"entity leftovers", "Tom &amp; Jerry &lt;3", "Tom & Jerry <3"},
		{"zero width", "Beasiswa\u200b 2024", "Beasiswa 2024"},
		{"already utf8", "Pengumuman \u2013 Wisuda", "Pengumuman \u2013 Wisuda"},
		{"mojibake with entity", "Caf\u00c3\u00a9 &amp; Resto", "Caf\u00e9 & Resto"},
		{"dash mojibake with entity", "Kuliah \u00e2\u20ac\u201c Ruang 5 &amp; 6", "Kuliah \u2013 Ruang 5 & 6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
