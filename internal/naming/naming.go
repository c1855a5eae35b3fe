// Package naming builds filesystem-safe names for book directories and
// chapter files.
package naming

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// replacer strips characters that are reserved on common filesystems.
var replacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", " -",
	"*", "",
	"?", "",
	"\"", "'",
	"<", "",
	">", "",
	"|", "-",
	"\x00", "",
)

// Sanitize normalizes a metadata string for use as a file or directory name.
func Sanitize(s string) string {
	s = norm.NFC.String(s)
	s = replacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". ")
	return s
}

// Directory renders a directory name from a format string with @AUTHOR and
// @TITLE placeholders, sanitizing both values.
func Directory(format, author, title string) string {
	name := strings.ReplaceAll(format, "@AUTHOR", Sanitize(author))
	name = strings.ReplaceAll(name, "@TITLE", Sanitize(title))
	return strings.TrimSpace(name)
}

// SplitDirectory reverses the default "Author - Title" directory convention.
// The author never contains " - " in practice, so the first separator wins.
func SplitDirectory(name string) (author, title string, ok bool) {
	author, title, ok = strings.Cut(name, " - ")
	if !ok {
		return "", "", false
	}
	author = strings.TrimSpace(author)
	title = strings.TrimSpace(title)
	if author == "" || title == "" {
		return "", "", false
	}
	return author, title, true
}
