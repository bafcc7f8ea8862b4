package entity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

// sigV4Signer signs requests with AWS Signature Version 4 for the s3 service.
type sigV4Signer struct {
	accessKey string
	secretKey string
	region    string
	token     string
	now       func() time.Time
}

// Sign never mutates the signer, so one instance may serve concurrent
// requests.
func (s *sigV4Signer) Sign(req *http.Request, payloadHash string) error {
	now := s.now
	if now == nil {
		now = time.Now
	}
	t := now().UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")
	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("host", req.URL.Host)
	if payloadHash == "" {
		payloadHash = emptyPayloadHash()
	}
	canonicalHeaders, signedHeaders := canonicalHeaderStrings(req.Header)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQueryString(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
	hashedRequest := sha256.Sum256([]byte(canonicalRequest))
	credentialScope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, s.region)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		hex.EncodeToString(hashedRequest[:]),
	}, "\n")
	signature := hex.EncodeToString(hmacSHA256(s.deriveKey(dateStamp), stringToSign))
	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s.accessKey, credentialScope, signedHeaders, signature))
	if s.token != "" {
		req.Header.Set("x-amz-security-token", s.token)
	}
	return nil
}

func (s *sigV4Signer) deriveKey(date string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+s.secretKey), date)
	kRegion := hmacSHA256(kDate, s.region)
	kService := hmacSHA256(kRegion, "s3")
	return hmacSHA256(kService, "aws4_request")
}

func canonicalURI(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func canonicalQueryString(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	values, _ := url.ParseQuery(u.RawQuery)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, fmt.Sprintf("%s=%s", awsEscape(k), awsEscape(v)))
		}
	}
	return strings.Join(parts, "&")
}

// awsEscape percent-encodes per RFC 3986 as the signature canonicalization
// requires: spaces become %20, never +.
func awsEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func canonicalHeaderStrings(h http.Header) (string, string) {
	keys := make([]string, 0, len(h))
	lower := make(map[string][]string)
	for k, v := range h {
		lk := strings.ToLower(k)
		keys = append(keys, lk)
		lower[lk] = v
	}
	sort.Strings(keys)
	keys = uniqueSorted(keys)
	var canonical []string
	var signed []string
	for _, k := range keys {
		values := make([]string, len(lower[k]))
		copy(values, lower[k])
		sort.Strings(values)
		canonical = append(canonical, fmt.Sprintf("%s:%s", k, strings.TrimSpace(strings.Join(values, ","))))
		signed = append(signed, k)
	}
	return strings.Join(canonical, "\n") + "\n", strings.Join(signed, ";")
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := []string{in[0]}
	for i := 1; i < len(in); i++ {
		if in[i] != in[i-1] {
			out = append(out, in[i])
		}
	}
	return out
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
