package setting

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // fingerprint display only
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FormRow is one field of a FORM setting.
type FormRow struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Required  bool              `json:"required,omitempty"`
	ReadOnly  bool              `json:"readonly,omitempty"`
	Minimum   int               `json:"minimumLength,omitempty"`
	Maximum   int               `json:"maximumLength,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Regex     string            `json:"regex,omitempty"`
	Sensitive bool              `json:"sensitive,omitempty"`
}

// ActionRow is one entry of an ACTION setting.
type ActionRow struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"` // webservice or ldap
	URL         string `json:"url,omitempty"`
	Method      string `json:"method,omitempty"`
	Body        string `json:"body,omitempty"`
	Attribute   string `json:"attributeName,omitempty"`
	Value       string `json:"attributeValue,omitempty"`
}

// Permission is one entry of a PERMISSION setting.
type Permission struct {
	Type      string `json:"type"` // ldapQuery or ldapGroup
	ProfileID string `json:"ldapProfileID,omitempty"`
	Query     string `json:"ldapQuery,omitempty"`
	Base      string `json:"ldapBase,omitempty"`
}

// EmailItem is the per-locale value of an EMAIL setting.
type EmailItem struct {
	To        string `json:"to,omitempty"`
	From      string `json:"from,omitempty"`
	Subject   string `json:"subject,omitempty"`
	BodyPlain string `json:"bodyPlain,omitempty"`
	BodyHTML  string `json:"bodyHtml,omitempty"`
}

// VerificationLevel is the requirement level of a verification method.
type VerificationLevel string

const (
	VerificationDisabled VerificationLevel = "disabled"
	VerificationOptional VerificationLevel = "optional"
	VerificationRequired VerificationLevel = "required"
)

// VerificationMethods is the value of a VERIFICATION_METHOD setting.
type VerificationMethods struct {
	MinOptionalRequired int                          `json:"minOptionalRequired"`
	Methods             map[string]VerificationLevel `json:"methodSettings"`
}

// PasswordState is the read value of a PASSWORD setting. The secret itself is
// never returned.
type PasswordState struct {
	Present bool `json:"present"`
}

// NamedSecret is the read value of one NAMED_SECRET entry.
type NamedSecret struct {
	Usage []string `json:"usage"`
}

// NamedSecretInput is the write value of one NAMED_SECRET entry. Password is
// empty for entries that keep their stored secret.
type NamedSecretInput struct {
	Password string   `json:"password,omitempty"`
	Usage    []string `json:"usage"`
}

// CertInfo is the displayable metadata of an X.509 certificate.
type CertInfo struct {
	Subject    string    `json:"subject"`
	Issuer     string    `json:"issuer"`
	Serial     string    `json:"serial"`
	NotBefore  time.Time `json:"issueDate"`
	NotAfter   time.Time `json:"expireDate"`
	SHA1Hash   string    `json:"sha1Hash"`
	SHA256Hash string    `json:"sha256Hash"`
}

// KeyInfo is the read value of a PRIVATE_KEY setting.
type KeyInfo struct {
	Present      bool       `json:"present"`
	KeyType      string     `json:"keyType,omitempty"`
	Certificates []CertInfo `json:"certificates,omitempty"`
}

// PrivateKeyInput is the write value of a PRIVATE_KEY setting.
type PrivateKeyInput struct {
	Key          string   `json:"key"`
	Certificates []string `json:"certificates"`
}

// FileInfo is the read value of one FILE entry.
type FileInfo struct {
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// FileUpload is the write value of one FILE entry. Content is base64 on the wire.
type FileUpload struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Content []byte `json:"content"`
}

// Info returns the metadata of an uploaded file.
func (f FileUpload) Info() FileInfo {
	sum := sha256.Sum256(f.Content)
	return FileInfo{
		Name:   f.Name,
		Type:   f.Type,
		Size:   int64(len(f.Content)),
		SHA256: hex.EncodeToString(sum[:]),
	}
}

// ErrNoCertificate is returned when PEM input holds no certificate block.
var ErrNoCertificate = errors.New("no certificate found in PEM data")

// ParseCertificates decodes every CERTIFICATE block in data.
func ParseCertificates(data string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := []byte(data)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificate
	}
	return certs, nil
}

// DescribeCertificate extracts display metadata.
func DescribeCertificate(cert *x509.Certificate) CertInfo {
	s1 := sha1.Sum(cert.Raw) //nolint:gosec // fingerprint display only
	s256 := sha256.Sum256(cert.Raw)
	return CertInfo{
		Subject:    cert.Subject.String(),
		Issuer:     cert.Issuer.String(),
		Serial:     cert.SerialNumber.String(),
		NotBefore:  cert.NotBefore.UTC(),
		NotAfter:   cert.NotAfter.UTC(),
		SHA1Hash:   strings.ToUpper(hex.EncodeToString(s1[:])),
		SHA256Hash: strings.ToUpper(hex.EncodeToString(s256[:])),
	}
}

// EncodeCertificates re-encodes certificates as individual PEM strings.
func EncodeCertificates(certs []*x509.Certificate) []string {
	out := make([]string, 0, len(certs))
	for _, c := range certs {
		out = append(out, string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})))
	}
	return out
}

// PrivateKeyType reports the key algorithm of a PEM private key.
func PrivateKeyType(data string) (string, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return "", errors.New("no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
			return "", fmt.Errorf("failed to parse RSA key: %w", err)
		}
		return "RSA", nil
	case "EC PRIVATE KEY":
		if _, err := x509.ParseECPrivateKey(block.Bytes); err != nil {
			return "", fmt.Errorf("failed to parse EC key: %w", err)
		}
		return "EC", nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("failed to parse PKCS#8 key: %w", err)
		}
		switch key.(type) {
		case *rsa.PrivateKey:
			return "RSA", nil
		case *ecdsa.PrivateKey:
			return "EC", nil
		case ed25519.PrivateKey:
			return "Ed25519", nil
		default:
			return "unknown", nil
		}
	default:
		return "", fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}
