// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ingest

import (
	"strings"
	"unicode"
)

// maxSlugLen keeps generated names well under the URI segment limit.
const maxSlugLen = 64

// Slugify converts free text into a filesystem- and URI-safe name:
// lower-cased, letter/digit runs preserved, everything else collapsed
// to single hyphens. Returns "" when nothing survives.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// SlugFromWords slugs the first maxWords words of text. Used for
// naming artefacts after their leading content.
func SlugFromWords(text string, maxWords int) string {
	fields := strings.Fields(text)
	if len(fields) > maxWords {
		fields = fields[:maxWords]
	}
	return Slugify(strings.Join(fields, " "))
}
