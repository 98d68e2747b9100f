package detect

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var urlRE = regexp.MustCompile(`(?i)https?://[^\s]+`)

func (d *Detector) matchScamPattern(text string) bool {
	for _, pattern := range d.patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// foreignHosts extracts URL hosts that are not whitelisted. Whitelisting
// matches the exact host or any parent domain suffix.
func (d *Detector) foreignHosts(text string) []string {
	matches := urlRE.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	hosts := make([]string, 0, len(matches))
	for _, raw := range matches {
		parsed, err := url.Parse(strings.TrimRight(raw, ".,!?)"))
		if err != nil || parsed.Host == "" {
			continue
		}
		host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))
		if !d.isWhitelisted(host) {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

func (d *Detector) isWhitelisted(host string) bool {
	for _, allowed := range d.whitelist {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func isOnlyLinks(text string) bool {
	stripped := urlRE.ReplaceAllString(text, "")
	return strings.TrimSpace(stripped) == ""
}

// checkContentShape flags shouting (caps ratio past the limit on messages
// long enough to matter) and runs of identical characters. When below the
// flag threshold it reports the caps ratio as a soft fraction.
func (d *Detector) checkContentShape(text string) (bool, float64) {
	runes := []rune(text)

	run := 0
	var last rune
	for i, r := range runes {
		if i > 0 && r == last {
			run++
			if run+1 >= d.cfg.RepeatedCharRun {
				return true, 0
			}
		} else {
			run = 0
		}
		last = r
	}

	if len(runes) < d.cfg.MinCapsLength {
		return false, 0
	}
	letters, uppers := 0, 0
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	if letters == 0 {
		return false, 0
	}
	ratio := float64(uppers) / float64(letters)
	if ratio >= d.cfg.MaxCapsRatio {
		return true, 0
	}
	return false, ratio / d.cfg.MaxCapsRatio
}
