package lfs

import (
	"strings"
)

// URLFromConfig returns the lfs.url value of an .lfsconfig file.
//
// Only the first url key of the [lfs] section counts. A line without a
// key/value separator inside the section ends the lookup with no result.
func URLFromConfig(config string) (string, bool) {
	var section string
	for _, line := range strings.Split(config, "\n") {
		line, _, _ = strings.Cut(line, ";")
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}
		if section != "lfs" {
			continue
		}

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return "", false
		}
		if strings.TrimSpace(key) == "url" {
			return strings.TrimSpace(val), true
		}
	}
	return "", false
}
