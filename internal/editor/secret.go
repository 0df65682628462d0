package editor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

// Secret editors send a write payload that differs from what the server
// reads back, so every write is followed by a reload. Nothing they render
// contains secret material.

// PasswordEditor edits PASSWORD settings. It only knows whether a password
// is stored.
type PasswordEditor struct {
	*valueEditor[setting.PasswordState]
}

// NewPasswordEditor creates a password editor.
func NewPasswordEditor(b Backend, d setting.Descriptor) *PasswordEditor {
	e := &PasswordEditor{valueEditor: newValueEditor[setting.PasswordState](b, d)}
	e.format = func(v setting.PasswordState) []string {
		if v.Present {
			return []string{i18n.T("editor.secret.present")}
		}
		return []string{i18n.T("editor.secret.absent")}
	}
	return e
}

// Set stores a new password.
func (e *PasswordEditor) Set(ctx context.Context, password string) error {
	d := e.desc
	if password == "" {
		return invalid("%s must not be empty", d.Label)
	}
	if minLen, ok := d.IntProperty(setting.PropMinimum); ok && int64(utf8.RuneCountInString(password)) < minLen {
		return invalid("must be at least %d characters", minLen)
	}
	return e.send(ctx, func(setting.PasswordState) (any, error) { return password, nil })
}

// Write accepts the new password as a string.
func (e *PasswordEditor) Write(ctx context.Context, value any) error {
	pw, ok := value.(string)
	if !ok {
		return invalid("password must be a string, got %T", value)
	}
	return e.Set(ctx, pw)
}

// NamedSecretEditor edits NAMED_SECRET settings: named passwords with a
// usage list each.
type NamedSecretEditor struct {
	*valueEditor[map[string]setting.NamedSecret]
}

// NewNamedSecretEditor creates a named secret editor.
func NewNamedSecretEditor(b Backend, d setting.Descriptor) *NamedSecretEditor {
	e := &NamedSecretEditor{valueEditor: newValueEditor[map[string]setting.NamedSecret](b, d)}
	e.format = func(v map[string]setting.NamedSecret) []string {
		if len(v) == 0 {
			return []string{i18n.T("editor.list.empty")}
		}
		lines := make([]string, 0, len(v))
		for _, name := range secretNames(v) {
			usage := strings.Join(v[name].Usage, ", ")
			lines = append(lines, strings.TrimSpace(fmt.Sprintf("%s %s", name, usage)))
		}
		return lines
	}
	return e
}

func secretNames(v map[string]setting.NamedSecret) []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Names returns the stored secret names in order.
func (e *NamedSecretEditor) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return secretNames(e.value)
}

// keep builds the write payload for the entries that keep their secret.
func keep(v map[string]setting.NamedSecret) map[string]setting.NamedSecretInput {
	out := make(map[string]setting.NamedSecretInput, len(v)+1)
	for name, s := range v {
		out[name] = setting.NamedSecretInput{Usage: s.Usage}
	}
	return out
}

// Add stores a new secret, or replaces the secret and usage of name.
func (e *NamedSecretEditor) Add(ctx context.Context, name, secret string, usage []string) error {
	if name == "" {
		return invalid("secret name is empty")
	}
	if secret == "" {
		return invalid("secret %s has no value", name)
	}
	return e.send(ctx, func(cur map[string]setting.NamedSecret) (any, error) {
		payload := keep(cur)
		payload[name] = setting.NamedSecretInput{Password: secret, Usage: usage}
		return payload, nil
	})
}

// Remove deletes the secret called name.
func (e *NamedSecretEditor) Remove(ctx context.Context, name string) error {
	return e.send(ctx, func(cur map[string]setting.NamedSecret) (any, error) {
		if _, ok := cur[name]; !ok {
			return nil, invalid("no secret named %q", name)
		}
		payload := keep(cur)
		delete(payload, name)
		return payload, nil
	})
}

// Write accepts a complete map of secret inputs.
func (e *NamedSecretEditor) Write(ctx context.Context, value any) error {
	in, err := coerce[map[string]setting.NamedSecretInput](value, nil)
	if err != nil {
		return err
	}
	return e.send(ctx, func(map[string]setting.NamedSecret) (any, error) { return in, nil })
}

// CertificateEditor edits X509CERT settings.
type CertificateEditor struct {
	*valueEditor[[]setting.CertInfo]
}

// NewCertificateEditor creates a certificate editor.
func NewCertificateEditor(b Backend, d setting.Descriptor) *CertificateEditor {
	e := &CertificateEditor{valueEditor: newValueEditor[[]setting.CertInfo](b, d)}
	e.format = formatCerts
	return e
}

func formatCerts(v []setting.CertInfo) []string {
	if len(v) == 0 {
		return []string{i18n.T("editor.list.empty")}
	}
	var lines []string
	for i, c := range v {
		lines = append(lines,
			fmt.Sprintf("%d. %s", i+1, c.Subject),
			fmt.Sprintf("   issuer:  %s", c.Issuer),
			fmt.Sprintf("   serial:  %s", c.Serial),
			fmt.Sprintf("   expires: %s", c.NotAfter.Format("2006-01-02")),
			fmt.Sprintf("   sha1:    %s", c.SHA1Hash),
			fmt.Sprintf("   sha256:  %s", c.SHA256Hash),
		)
	}
	return lines
}

// ImportPEM replaces the stored chain with the certificates in data.
func (e *CertificateEditor) ImportPEM(ctx context.Context, data string) error {
	certs, err := setting.ParseCertificates(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	pems := setting.EncodeCertificates(certs)
	return e.send(ctx, func([]setting.CertInfo) (any, error) { return pems, nil })
}

// Write accepts PEM text.
func (e *CertificateEditor) Write(ctx context.Context, value any) error {
	data, ok := value.(string)
	if !ok {
		return invalid("certificates must be PEM text, got %T", value)
	}
	return e.ImportPEM(ctx, data)
}

// PrivateKeyEditor edits PRIVATE_KEY settings: a key and its certificate chain.
type PrivateKeyEditor struct {
	*valueEditor[setting.KeyInfo]
}

// NewPrivateKeyEditor creates a private key editor.
func NewPrivateKeyEditor(b Backend, d setting.Descriptor) *PrivateKeyEditor {
	e := &PrivateKeyEditor{valueEditor: newValueEditor[setting.KeyInfo](b, d)}
	e.format = func(v setting.KeyInfo) []string {
		if !v.Present {
			return []string{i18n.T("editor.secret.absent")}
		}
		lines := []string{fmt.Sprintf("%s (%s)", i18n.T("editor.secret.present"), v.KeyType)}
		if len(v.Certificates) > 0 {
			lines = append(lines, formatCerts(v.Certificates)...)
		}
		return lines
	}
	return e
}

// ImportPEM stores key together with the certificates in chain. chain may be
// empty.
func (e *PrivateKeyEditor) ImportPEM(ctx context.Context, key, chain string) error {
	if _, err := setting.PrivateKeyType(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	in := setting.PrivateKeyInput{Key: key, Certificates: []string{}}
	if strings.TrimSpace(chain) != "" {
		certs, err := setting.ParseCertificates(chain)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		in.Certificates = setting.EncodeCertificates(certs)
	}
	return e.send(ctx, func(setting.KeyInfo) (any, error) { return in, nil })
}

// Write accepts a setting.PrivateKeyInput or a PEM key without chain.
func (e *PrivateKeyEditor) Write(ctx context.Context, value any) error {
	switch v := value.(type) {
	case setting.PrivateKeyInput:
		return e.ImportPEM(ctx, v.Key, strings.Join(v.Certificates, ""))
	case string:
		return e.ImportPEM(ctx, v, "")
	default:
		return invalid("private key must be PEM text, got %T", value)
	}
}

// FileEditor edits FILE settings. The Maximum property bounds the upload
// size in bytes.
type FileEditor struct {
	*valueEditor[[]setting.FileInfo]
}

// NewFileEditor creates a file editor.
func NewFileEditor(b Backend, d setting.Descriptor) *FileEditor {
	e := &FileEditor{valueEditor: newValueEditor[[]setting.FileInfo](b, d)}
	e.format = func(v []setting.FileInfo) []string {
		if len(v) == 0 {
			return []string{i18n.T("editor.list.empty")}
		}
		lines := make([]string, 0, len(v)*2)
		for _, f := range v {
			lines = append(lines,
				fmt.Sprintf("%s (%s, %d bytes)", f.Name, f.Type, f.Size),
				fmt.Sprintf("   sha256: %s", f.SHA256))
		}
		return lines
	}
	return e
}

// Upload replaces the stored file.
func (e *FileEditor) Upload(ctx context.Context, name, contentType string, content []byte) error {
	if name == "" {
		return invalid("file name is empty")
	}
	if maxSize, ok := e.desc.IntProperty(setting.PropMaximum); ok && maxSize > 0 && int64(len(content)) > maxSize {
		return invalid("file is larger than %d bytes", maxSize)
	}
	up := []setting.FileUpload{{Name: name, Type: contentType, Content: content}}
	return e.send(ctx, func([]setting.FileInfo) (any, error) { return up, nil })
}

// Write accepts a setting.FileUpload.
func (e *FileEditor) Write(ctx context.Context, value any) error {
	f, ok := value.(setting.FileUpload)
	if !ok {
		return invalid("file must be a setting.FileUpload, got %T", value)
	}
	return e.Upload(ctx, f.Name, f.Type, f.Content)
}
