// Package linkrewrite turns outbound hyperlinks in rendered email
// content into redirect-through-self URLs that correlate a click back
// to an email and, after send time, a recipient.
//
// Internal links (same site) keep attribution parameters for
// analytics. External links carry only a generic referral parameter:
// attribution parameters are stripped so recipient-identifying data
// never leaks to third parties. Links on the configured allow-list
// pass through untouched.
package linkrewrite

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// RecipientPlaceholder is substituted per recipient at send time via
// the provider's substitution data, so a shared batch template still
// yields recipient-correlated redirects.
const RecipientPlaceholder = "%%recipient_uuid%%"

var hrefRegex = regexp.MustCompile(`href="(https?://[^"]+)"`)

// Rewriter rewrites links for one site. Safe for concurrent use.
type Rewriter struct {
	trackingBase string
	siteHost     string
	siteName     string
	signingKey   []byte
	passthrough  map[string]struct{}
}

// New creates a link rewriter. trackingBase is the public base URL of
// the redirect endpoint, siteURL the publication's own origin, and
// passthrough the exact URLs exempt from rewriting.
func New(trackingBase, siteURL, signingKey string, passthrough []string) (*Rewriter, error) {
	site, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("linkrewrite: parse site url: %w", err)
	}

	pt := make(map[string]struct{}, len(passthrough))
	for _, u := range passthrough {
		pt[u] = struct{}{}
	}

	return &Rewriter{
		trackingBase: strings.TrimSuffix(trackingBase, "/"),
		siteHost:     strings.ToLower(site.Hostname()),
		siteName:     strings.ToLower(site.Hostname()),
		signingKey:   []byte(signingKey),
		passthrough:  pt,
	}, nil
}

// RewriteHTML rewrites every absolute href in the rendered content.
// emailID ties clicks to the send; postID feeds the attribution
// parameters carried on internal destinations.
func (rw *Rewriter) RewriteHTML(html, emailID, postID string) string {
	return hrefRegex.ReplaceAllStringFunc(html, func(match string) string {
		original := hrefRegex.FindStringSubmatch(match)[1]

		if _, ok := rw.passthrough[original]; ok {
			return match
		}
		// Never re-wrap an already tracked link.
		if strings.HasPrefix(original, rw.trackingBase+"/r/") {
			return match
		}

		dest, err := url.Parse(original)
		if err != nil {
			return match
		}

		rw.decorate(dest, postID)
		return `href="` + rw.redirectURL(emailID, dest.String()) + `"`
	})
}

// decorate applies the internal/external destination policy in place.
func (rw *Rewriter) decorate(dest *url.URL, postID string) {
	q := dest.Query()
	if rw.isInternal(dest) {
		q.Set("attribution_id", postID)
		q.Set("attribution_type", "post")
	} else {
		for key := range q {
			if strings.HasPrefix(key, "attribution_") {
				q.Del(key)
			}
		}
		q.Set("ref", rw.siteName)
	}
	dest.RawQuery = q.Encode()
}

func (rw *Rewriter) isInternal(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return host == rw.siteHost || strings.HasSuffix(host, "."+rw.siteHost)
}

// redirectURL builds the signed redirect-through-self URL. The
// recipient token is a placeholder until send time.
func (rw *Rewriter) redirectURL(emailID, dest string) string {
	data := emailID + "|" + dest
	encoded := base64.URLEncoding.EncodeToString([]byte(data))
	return fmt.Sprintf("%s/r/%s/%s?m=%s", rw.trackingBase, encoded, rw.sign(data), RecipientPlaceholder)
}

// DecodeToken verifies and unpacks a redirect token, returning the
// owning email id and the original destination.
func (rw *Rewriter) DecodeToken(encoded, signature string) (emailID, dest string, err error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("linkrewrite: invalid encoding")
	}
	data := string(raw)
	if !hmac.Equal([]byte(rw.sign(data)), []byte(signature)) {
		return "", "", fmt.Errorf("linkrewrite: invalid signature")
	}
	parts := strings.SplitN(data, "|", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("linkrewrite: invalid token")
	}
	return parts[0], parts[1], nil
}

func (rw *Rewriter) sign(data string) string {
	h := hmac.New(sha256.New, rw.signingKey)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
