package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	separatorRun = regexp.MustCompile(`[\s\-]+`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_]`)
)

// TableName derives a target table name from a file name.
//
// The base name loses its last extension, accented letters are folded to
// their base letter, the result is lower-cased, each run of whitespace or
// hyphens becomes one underscore, and any other character outside
// [a-z0-9_] is dropped:
//
//	"Quarter-1 Sales Data.csv" -> "quarter_1_sales_data"
//	"Re@lly$%We!rd-File.csv"   -> "rellywerd_file"
//	"Café Menü.csv"            -> "cafe_menu"
//
// The function is deterministic, so a record's table name never changes.
func TableName(fileName string) string {
	base := filepath.Base(fileName)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return slugify(base)
}

func slugify(s string) string {
	s = strings.ToLower(foldDiacritics(s))
	s = separatorRun.ReplaceAllString(s, "_")
	return invalidChars.ReplaceAllString(s, "")
}

// foldDiacritics strips combining marks after canonical decomposition.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// FormatTimestamp renders t as an ISO-8601 UTC timestamp with millisecond
// precision, with ':' and '.' replaced by '-' so it is safe in file names:
//
//	2025-03-04T05:06:07.089Z -> 2025-03-04T05-06-07-089Z
func FormatTimestamp(t time.Time) string {
	s := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(s)
}

// DescriptorID is "<timestamp>_<directory slug>". An empty slug (e.g. the
// root directory) becomes "scan".
func DescriptorID(scannedAt time.Time, dir string) string {
	slug := slugify(filepath.Base(filepath.Clean(dir)))
	if slug == "" {
		slug = "scan"
	}
	return FormatTimestamp(scannedAt) + "_" + slug
}
