package param

import (
	"net/http"
	"regexp"

	log "github.com/sirupsen/logrus"
)

// when requesting a param, also validate it against a regexp to ensure it is what we expect
var numRegexp = regexp.MustCompile(`^[\d]+$`)
var nameRegexp = regexp.MustCompile(`^[-.\w]+$`)
var boolRegexp = regexp.MustCompile(`^(?i)(true|false|1|0)$`)
var paramRegexp = map[string]*regexp.Regexp{
	"owner":              nameRegexp,
	"repo":               nameRegexp,
	"pr_number":          numRegexp,
	"max_prs":            numRegexp,
	"limit":              numRegexp,
	"force_refresh":      boolRegexp,
	"include_closed_prs": boolRegexp,
	"min_risk_level":     regexp.MustCompile(`^(low|medium|high|critical)$`),
}

// SafeRead returns the value of a query parameter only if it matches the given regexp.
// this should be used to validate query parameters that are not otherwise validated.
func SafeRead(req *http.Request, name string) string {
	re, ok := paramRegexp[name]
	if !ok {
		log.Fatalf("code BUG: request for unknown param %s", name) // revive:disable-line:deep-exit
	}
	value := req.URL.Query().Get(name)
	if value == "" || re.MatchString(value) {
		return value
	}
	log.Warnf("invalid value for %s param: %q", name, value)
	return ""
}
