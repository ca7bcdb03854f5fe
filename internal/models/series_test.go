package models

import (
	"reflect"
	"testing"
)

func TestMergeFiles(t *testing.T) {
	series := &CachedSeries{
		SeriesKey: "Some_Title",
		FileNames: []string{"Vol. 1 Ch. 1.cbz", "Vol. 1 Ch. 2.cbz"},
	}

	series.MergeFiles([]string{"Vol. 1 Ch. 2.cbz", "Vol. 1 Ch. 3.cbz", "", "Vol. 1 Ch. 3.cbz"})

	want := []string{"Vol. 1 Ch. 1.cbz", "Vol. 1 Ch. 2.cbz", "Vol. 1 Ch. 3.cbz"}
	if !reflect.DeepEqual(series.FileNames, want) {
		t.Errorf("merged files = %v, want %v", series.FileNames, want)
	}
}

func TestSanitizeDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Some_Manga_Title", "Some Manga Title"},
		{`Bad<>:"/\|?*Name`, "BadName"},
		{"  Trimmed_  ", "Trimmed"},
		{"Control\x01Chars", "ControlChars"},
	}

	for _, tt := range tests {
		if got := SanitizeDisplayName(tt.in); got != tt.want {
			t.Errorf("SanitizeDisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
