package classify

import "regexp"

var (
	bracketTicker = regexp.MustCompile(`\[([A-Z0-9-]+)\]$`)
	prefixTicker  = regexp.MustCompile(`^([A-Z0-9-]+):`)
)

// ExtractTicker pulls a ticker out of a title shaped "Title [CODE]" or
// "CODE: Title". Codes may carry a hyphen, e.g. "INET-R".
func ExtractTicker(title string) (string, bool) {
	if m := bracketTicker.FindStringSubmatch(title); m != nil {
		return m[1], true
	}
	if m := prefixTicker.FindStringSubmatch(title); m != nil {
		return m[1], true
	}
	return "", false
}
