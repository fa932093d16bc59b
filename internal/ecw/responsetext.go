package ecw

import (
	"bytes"
	"mime"
	"strings"

	"golang.org/x/net/html/charset"
)

// responseText turns a portal body into text for Classify. XML bodies that
// declare an encoding are returned byte for byte so decodeXML applies the
// declaration exactly once. Other bodies are transcoded only when the
// encoding is known: a charset on the Content-Type, or for HTML a BOM or meta
// declaration. Everything else is taken as UTF-8.
func responseText(raw []byte, contentType string) string {
	head := string(raw[:min(len(raw), 256)])
	trimmed := strings.TrimSpace(head)
	if looksLikeXML(trimmed) && xmlDeclaresEncoding(trimmed) {
		return string(raw)
	}

	if label := declaredCharset(contentType); label != "" {
		return transcode(raw, label)
	}
	if looksLikeHTML(trimmed) {
		if _, name, certain := charset.DetermineEncoding(raw, contentType); certain {
			return transcode(raw, name)
		}
	}
	return string(raw)
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

// transcode decodes raw from the named encoding. Unknown labels and UTF-8
// leave the bytes untouched, minus a UTF-8 byte order mark.
func transcode(raw []byte, label string) string {
	enc, name := charset.Lookup(label)
	if enc == nil || name == "utf-8" {
		return string(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")))
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func xmlDeclaresEncoding(head string) bool {
	if !strings.HasPrefix(head, "<?xml") {
		return false
	}
	decl, _, _ := strings.Cut(head, "?>")
	return strings.Contains(decl, "encoding=")
}
