package staticfile

import (
	"io/fs"
	"strings"
)

// renderDirectoryListing builds the HTML index page for dirPath, a mapped
// path such as "./" or "./assets/img". Entries keep the order they were given
// in. Names are shown raw and percent-encoded only inside the link target.
func renderDirectoryListing(baseURL, dirPath string, entries []fs.DirEntry) string {
	var b strings.Builder
	b.WriteString(`<!doctype html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width"><title>Index of `)
	b.WriteString(dirPath)
	b.WriteString(`</title></head><body><h1>Index of `)
	b.WriteString(dirPath)
	b.WriteString(`</h1>`)

	b.WriteString(`<table>`)
	rel := stripRootMarker(dirPath)
	for _, entry := range entries {
		name := entry.Name()
		b.WriteString(`<tr><td><a href="`)
		b.WriteString(baseURL)
		b.WriteString("/")
		b.WriteString(rel)
		b.WriteString("/")
		b.WriteString(encodeURIComponent(name))
		b.WriteString(`">`)
		b.WriteString(name)
		b.WriteString(`</a></td></tr>`)
	}
	b.WriteString(`</table>`)

	if len(dirPath) > 2 {
		b.WriteString(`<a href="`)
		b.WriteString(baseURL)
		b.WriteString("/")
		b.WriteString(parentPath(dirPath))
		b.WriteString(`">..</a>`)
	}

	b.WriteString(`</body></html>`)
	return b.String()
}

// stripRootMarker drops the leading "./" of a mapped path.
func stripRootMarker(dirPath string) string {
	if len(dirPath) <= 2 {
		return ""
	}
	return dirPath[2:]
}

// parentPath splits on "/", drops the first and last components and rejoins.
// For "./a/b" that is "a"; for "./a/b/" it is "a/b", since the trailing slash
// yields an empty last component.
func parentPath(dirPath string) string {
	parts := strings.Split(dirPath, "/")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], "/")
}

const upperHex = "0123456789ABCDEF"

// encodeURIComponent percent-encodes every byte except the RFC 3986
// unreserved set plus !~*'(), matching the JavaScript builtin of the same name.
func encodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIComponentSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func isURIComponentSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
