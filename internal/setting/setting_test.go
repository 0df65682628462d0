package setting

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogJSON = `{
  "settings": {
    "passwordPolicy.minLength": {"syntax": "NUMERIC", "category": "policy", "label": "Minimum Length", "level": 1,
      "properties": {"Minimum": "0", "Maximum": "64"}},
    "passwordPolicy.maxLength": {"syntax": "NUMERIC", "category": "policy", "label": "Maximum Length", "level": 1},
    "policy.hidden": {"syntax": "STRING", "category": "policy", "label": "Hidden", "flags": ["Hidden"]},
    "display.theme": {"syntax": "SELECT", "category": "ui", "label": "Theme", "options": {"dark": "Dark", "light": "Light"},
      "flags": ["ReloadEditorOnModify"]}
  },
  "categories": {
    "policy": {"label": "Password Policy", "level": 1},
    "ui": {"label": "User Interface", "level": 0}
  },
  "locales": {"de": "Deutsch", "fr": "Français"},
  "var": {"defaultLocale": "en", "formID": "abc"}
}`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(catalogJSON))
	require.NoError(t, err)

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, "en", c.DefaultLocale())
	assert.Equal(t, "abc", c.FormID())
	assert.Equal(t, []string{"de", "fr"}, c.Locales())
	assert.Equal(t, "Deutsch", c.LocaleName("de"))
	assert.Equal(t, "xx", c.LocaleName("xx"))

	d, err := c.Setting("passwordPolicy.minLength")
	require.NoError(t, err)
	assert.Equal(t, "passwordPolicy.minLength", d.Key)
	assert.Equal(t, SyntaxNumeric, d.Syntax)

	cat, ok := c.Category("policy")
	require.True(t, ok)
	assert.Equal(t, "policy", cat.Key)

	_, err = c.Setting("missing")
	assert.ErrorIs(t, err, ErrUnknownSetting)
}

func TestParseCatalog_Invalid(t *testing.T) {
	_, err := ParseCatalog([]byte("{"))
	assert.Error(t, err)
}

func TestSettingsInCategory(t *testing.T) {
	c, err := ParseCatalog([]byte(catalogJSON))
	require.NoError(t, err)

	got := c.SettingsInCategory("policy")
	require.Len(t, got, 2)
	assert.Equal(t, "Maximum Length", got[0].Label)
	assert.Equal(t, "Minimum Length", got[1].Label)
}

func TestDescriptorHelpers(t *testing.T) {
	c, err := ParseCatalog([]byte(catalogJSON))
	require.NoError(t, err)

	theme, _ := c.Setting("display.theme")
	assert.True(t, theme.HasFlag(FlagReloadEditorOnModify))
	assert.False(t, theme.HasFlag(FlagSensitive))
	assert.Equal(t, []string{"dark", "light"}, theme.OptionKeys())

	minLen, _ := c.Setting("passwordPolicy.minLength")
	v, ok := minLen.IntProperty(PropMaximum)
	assert.True(t, ok)
	assert.Equal(t, int64(64), v)
	_, ok = minLen.IntProperty(PropMinValue)
	assert.False(t, ok)
}

func TestSyntaxSecret(t *testing.T) {
	assert.True(t, SyntaxPassword.Secret())
	assert.True(t, SyntaxPrivateKey.Secret())
	assert.False(t, SyntaxString.Secret())
	assert.Len(t, Syntaxes(), 22)
}

func selfSignedPEM(t *testing.T, cn string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestParseCertificates(t *testing.T) {
	data := selfSignedPEM(t, "a.example.com") + selfSignedPEM(t, "b.example.com")

	certs, err := ParseCertificates(data)
	require.NoError(t, err)
	require.Len(t, certs, 2)

	info := DescribeCertificate(certs[0])
	assert.Equal(t, "CN=a.example.com", info.Subject)
	assert.Equal(t, "CN=a.example.com", info.Issuer)
	assert.Equal(t, "42", info.Serial)
	assert.Len(t, info.SHA1Hash, 40)
	assert.Len(t, info.SHA256Hash, 64)

	pems := EncodeCertificates(certs)
	assert.Len(t, pems, 2)

	_, err = ParseCertificates("not pem")
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestPrivateKeyType(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	kt, err := PrivateKeyType(string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})))
	require.NoError(t, err)
	assert.Equal(t, "EC", kt)

	_, err = PrivateKeyType("garbage")
	assert.Error(t, err)
}

func TestFileUploadInfo(t *testing.T) {
	info := FileUpload{Name: "logo.png", Type: "image/png", Content: []byte("abc")}.Info()
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", info.SHA256)
}
