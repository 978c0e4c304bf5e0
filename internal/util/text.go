package util

import (
	"strings"
)

var unsafeFilenameChars = strings.NewReplacer("<", "_", ">", "_", ":", "_", "\"", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_")

// SanitizeFilename replaces characters that are unsafe on common filesystems
// and keeps names at most 100 characters, preserving the extension.
func SanitizeFilename(name string) string {
	cleaned := unsafeFilenameChars.Replace(name)
	if len(cleaned) <= 100 {
		return cleaned
	}
	if idx := strings.LastIndex(cleaned, "."); idx > 0 {
		base, ext := cleaned[:idx], cleaned[idx+1:]
		if len(base) > 95 {
			base = base[:95]
		}
		return base + "." + ext
	}
	return cleaned[:100]
}

// StorageFilename is the blob name for an attachment: the owning message id
// keeps names unique when two messages carry identically named files.
func StorageFilename(messageID, sanitized string) string {
	return messageID + "_" + sanitized
}

func HasExtension(name, ext string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), strings.ToLower(ext))
}

func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
