package signature

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// KickPublicKey is the key Kick signs webhook deliveries with.
// It can be overridden through configuration when Kick rotates it.
const KickPublicKey = `-----BEGIN PUBLIC KEY-----
MIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8AMIIBCgKCAQEAq/+l1WnlRrGSolDMA+A8
6rAhMbQGmQ2SapVcGM3zq8ANXjnhDWocMqfWcTd95btDydITa10kDvHzw9WQOqp2
MZI7ZyrfzJuz5nhTPCiJwTwnEtWft7nV14BYRDHvlfqPUaZ+1KR4OCaO/wWIk/rQ
L/TjY0M70gse8rlBkbo2a8rKhu69RQTRsoaf4DVhDPEeSeI5jVrRDGAMGL3cGuyY
6CLKGdjVEM78g3JfYOvDU/RvfqD7L89TZ3iN94jrmWdGz34JNlEI5hqK8dd7C5EF
BEbZ5jgB8s8ReQV8H+MkuffjdAj3ajDDX3DOJMIut1lBrUVD1AaSrGCKHooWoL2e
twIDAQAB
-----END PUBLIC KEY-----
`

// Verifier checks that an inbound notification was signed by the event source.
type Verifier struct {
	key *rsa.PublicKey
}

func NewVerifier(key *rsa.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// NewVerifierFromPEM parses a PKIX ("PUBLIC KEY") or PKCS#1 ("RSA PUBLIC KEY")
// PEM block.
func NewVerifierFromPEM(pemKey []byte) (*Verifier, error) {
	key, err := ParsePublicKey(pemKey)
	if err != nil {
		return nil, err
	}
	return NewVerifier(key), nil
}

func ParsePublicKey(pemKey []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(bytes.TrimSpace(pemKey))
	if block == nil {
		return nil, errors.New("parse public key: no PEM block found")
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		return key, nil
	default:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("parse public key: unsupported key type %T", parsed)
		}
		return key, nil
	}
}

// Verify reports whether signatureB64 is a valid signature of
// messageID + "." + timestamp + "." + rawBody. rawBody must be the bytes as
// received: re-encoding the JSON changes what was signed.
func (v *Verifier) Verify(rawBody []byte, messageID, timestamp, signatureB64 string) bool {
	if v == nil || v.key == nil || messageID == "" || timestamp == "" || signatureB64 == "" {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}

	digest := sha256.Sum256(SignedContent(rawBody, messageID, timestamp))
	return rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], sig) == nil
}

// SignedContent builds the exact byte string the event source signs.
func SignedContent(rawBody []byte, messageID, timestamp string) []byte {
	buf := make([]byte, 0, len(messageID)+len(timestamp)+len(rawBody)+2)
	buf = append(buf, messageID...)
	buf = append(buf, '.')
	buf = append(buf, timestamp...)
	buf = append(buf, '.')
	return append(buf, rawBody...)
}
