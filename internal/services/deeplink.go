package services

import (
	"net/url"
	"regexp"
	"strings"
)

// PaymentOutcome is the result a payment return link reports
type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "exitoso"
	PaymentCancelled PaymentOutcome = "cancelado"
)

// PaymentLink is a parsed payment return link
type PaymentLink struct {
	Outcome   PaymentOutcome `json:"outcome"`
	SessionID string         `json:"session_id"`
	// Recovered is set when the link only parsed through the lenient fallback
	Recovered bool `json:"recovered"`
}

var sessionIDPattern = regexp.MustCompile(`session_id=([^&#\s]*)`)

// DeepLinkParser recognises scheme://pago/exitoso|cancelado?session_id=… links
type DeepLinkParser struct {
	scheme string
	host   string
}

// NewDeepLinkParser creates a parser for the app's scheme and payment host
func NewDeepLinkParser(scheme, host string) *DeepLinkParser {
	return &DeepLinkParser{
		scheme: strings.ToLower(scheme),
		host:   strings.ToLower(host),
	}
}

// Parse returns the payment outcome of a link, ok=false for links that are
// not payment return links. Provider redirects are not always well formed,
// so when strict parsing fails the session id and outcome are recovered
// from the raw text instead of dropping the outcome.
func (p *DeepLinkParser) Parse(raw string) (PaymentLink, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return p.parseLenient(raw)
	}

	if strings.ToLower(u.Scheme) != p.scheme {
		return PaymentLink{}, false
	}

	path := strings.TrimRight(u.Path, "/")
	switch {
	case strings.EqualFold(u.Host, p.host):
	case u.Host == "" && strings.HasPrefix(strings.ToLower(path), "/"+p.host+"/"):
		path = path[len(p.host)+1:]
	default:
		return PaymentLink{}, false
	}

	outcome, ok := outcomeForPath(strings.ToLower(path))
	if !ok {
		return PaymentLink{}, false
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return p.parseLenient(raw)
	}

	return PaymentLink{Outcome: outcome, SessionID: query.Get("session_id")}, true
}

func (p *DeepLinkParser) parseLenient(raw string) (PaymentLink, bool) {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(strings.TrimSpace(lower), p.scheme+":") || !strings.Contains(lower, p.host) {
		return PaymentLink{}, false
	}

	success := strings.Index(lower, "/"+string(PaymentSucceeded))
	cancel := strings.Index(lower, "/"+string(PaymentCancelled))
	link := PaymentLink{Recovered: true}
	switch {
	case success >= 0 && (cancel < 0 || success < cancel):
		link.Outcome = PaymentSucceeded
	case cancel >= 0:
		link.Outcome = PaymentCancelled
	default:
		return PaymentLink{}, false
	}

	if m := sessionIDPattern.FindStringSubmatch(raw); m != nil {
		link.SessionID = m[1]
		if decoded, err := url.QueryUnescape(m[1]); err == nil {
			link.SessionID = decoded
		}
	}
	return link, true
}

func outcomeForPath(path string) (PaymentOutcome, bool) {
	switch path {
	case "/" + string(PaymentSucceeded):
		return PaymentSucceeded, true
	case "/" + string(PaymentCancelled):
		return PaymentCancelled, true
	default:
		return "", false
	}
}
