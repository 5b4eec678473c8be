package awsclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	sigAlgorithm = "AWS4-HMAC-SHA256"
	amzDateFmt   = "20060102T150405Z"
)

type signer struct {
	service      string
	region       string
	accessKey    string
	secretKey    string
	sessionToken string
}

func (s signer) configured() bool {
	return s.region != "" && s.accessKey != "" && s.secretKey != ""
}

// sign adds X-Amz-Date, the optional session token and the Authorization
// header for a request whose path is "/" and query is empty.
func (s signer) sign(req *http.Request, payload []byte, now time.Time) error {
	if req.URL.Host == "" {
		return errors.New("aws host missing")
	}
	amzDate := now.Format(amzDateFmt)
	date := amzDate[:8]
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("X-Amz-Date", amzDate)
	if s.sessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", s.sessionToken)
	}

	headers, signed := canonicalHeaders(req.Header)
	canonicalRequest := strings.Join([]string{
		req.Method, "/", "", headers, signed, hexSHA256(payload),
	}, "\n")
	scope := strings.Join([]string{date, s.region, s.service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		sigAlgorithm, amzDate, scope, hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	key := hmacSum([]byte("AWS4"+s.secretKey), []byte(date))
	for _, part := range []string{s.region, s.service, "aws4_request"} {
		key = hmacSum(key, []byte(part))
	}
	signature := hex.EncodeToString(hmacSum(key, []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigAlgorithm, s.accessKey, scope, signed, signature))
	return nil
}

func canonicalHeaders(headers http.Header) (string, string) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		values := headers.Values(name)
		trimmed := make([]string, len(values))
		for i, v := range values {
			trimmed[i] = strings.TrimSpace(v)
		}
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.Join(trimmed, ","))
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
