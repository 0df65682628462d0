package devserver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dongho-jung/pwmcfg/internal/setting"
)

// canonical re-encodes JSON so that equal values compare equal as bytes.
func canonical(raw json.RawMessage) json.RawMessage {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

func decode[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("malformed value: %w", err)
	}
	return v, nil
}

func encode(v any) (json.RawMessage, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return canonical(out), nil
}

func decodeAs[T any](raw []byte) (json.RawMessage, error) {
	v, err := decode[T](raw)
	if err != nil {
		return nil, err
	}
	return encode(v)
}

func intProp(d setting.Descriptor, names ...string) (int64, bool) {
	for _, n := range names {
		if raw, ok := d.Properties[n]; ok {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// accept checks a written value and converts it to its read shape. Secret
// syntaxes also return the bcrypt hashes to keep. Caller holds s.mu.
func (s *Server) accept(d setting.Descriptor, k storeKey, body []byte) (json.RawMessage, map[string][]byte, error) {
	switch d.Syntax {
	case setting.SyntaxString, setting.SyntaxTextArea:
		v, err := decode[string](body)
		if err != nil {
			return nil, nil, err
		}
		if d.Required && v == "" {
			return nil, nil, fmt.Errorf("%s is required", d.Label)
		}
		if limit, ok := intProp(d, setting.PropMaximum); ok && limit > 0 && int64(len([]rune(v))) > limit {
			return nil, nil, fmt.Errorf("%s exceeds %d characters", d.Label, limit)
		}
		out, err := encode(v)
		return out, nil, err

	case setting.SyntaxSelect:
		v, err := decode[string](body)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := d.Options[v]; !ok {
			return nil, nil, fmt.Errorf("%q is not a valid option", v)
		}
		out, err := encode(v)
		return out, nil, err

	case setting.SyntaxNumeric, setting.SyntaxDuration:
		v, err := decode[int64](body)
		if err != nil {
			return nil, nil, err
		}
		if lo, ok := intProp(d, setting.PropMinimum, setting.PropMinValue); ok && v < lo {
			return nil, nil, fmt.Errorf("%s must be at least %d", d.Label, lo)
		}
		if hi, ok := intProp(d, setting.PropMaximum, setting.PropMaxValue); ok && hi > 0 && v > hi {
			return nil, nil, fmt.Errorf("%s must be at most %d", d.Label, hi)
		}
		out, err := encode(v)
		return out, nil, err

	case setting.SyntaxBoolean:
		out, err := decodeAs[bool](body)
		return out, nil, err

	case setting.SyntaxOptionList:
		v, err := decode[[]string](body)
		if err != nil {
			return nil, nil, err
		}
		for _, o := range v {
			if _, ok := d.Options[o]; !ok {
				return nil, nil, fmt.Errorf("%q is not a valid option", o)
			}
		}
		out, err := encode(v)
		return out, nil, err

	case setting.SyntaxStringArray, setting.SyntaxProfile:
		out, err := decodeAs[[]string](body)
		return out, nil, err
	case setting.SyntaxForm:
		out, err := decodeAs[[]setting.FormRow](body)
		return out, nil, err
	case setting.SyntaxAction:
		out, err := decodeAs[[]setting.ActionRow](body)
		return out, nil, err
	case setting.SyntaxPermission:
		out, err := decodeAs[[]setting.Permission](body)
		return out, nil, err
	case setting.SyntaxLocalizedString, setting.SyntaxLocalizedTextArea:
		out, err := decodeAs[map[string]string](body)
		return out, nil, err
	case setting.SyntaxLocalizedStringArray:
		out, err := decodeAs[map[string][]string](body)
		return out, nil, err
	case setting.SyntaxEmail:
		out, err := decodeAs[map[string]setting.EmailItem](body)
		return out, nil, err
	case setting.SyntaxVerificationMethod:
		out, err := decodeAs[setting.VerificationMethods](body)
		return out, nil, err

	case setting.SyntaxPassword:
		pw, err := decode[string](body)
		if err != nil {
			return nil, nil, err
		}
		if pw == "" {
			return nil, nil, fmt.Errorf("%s must not be empty", d.Label)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash password: %w", err)
		}
		out, err := encode(setting.PasswordState{Present: true})
		return out, map[string][]byte{"": hash}, err

	case setting.SyntaxNamedSecret:
		in, err := decode[map[string]setting.NamedSecretInput](body)
		if err != nil {
			return nil, nil, err
		}
		old := s.secrets[k]
		hashes := make(map[string][]byte, len(in))
		read := make(map[string]setting.NamedSecret, len(in))
		for name, entry := range in {
			if entry.Password == "" {
				h, ok := old[name]
				if !ok {
					return nil, nil, fmt.Errorf("secret %s has no value", name)
				}
				hashes[name] = h
			} else {
				h, err := bcrypt.GenerateFromPassword([]byte(entry.Password), bcrypt.MinCost)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to hash secret %s: %w", name, err)
				}
				hashes[name] = h
			}
			usage := entry.Usage
			if usage == nil {
				usage = []string{}
			}
			read[name] = setting.NamedSecret{Usage: usage}
		}
		out, err := encode(read)
		return out, hashes, err

	case setting.SyntaxX509Cert:
		pems, err := decode[[]string](body)
		if err != nil {
			return nil, nil, err
		}
		infos, err := describe(pems)
		if err != nil {
			return nil, nil, err
		}
		out, err := encode(infos)
		return out, nil, err

	case setting.SyntaxPrivateKey:
		in, err := decode[setting.PrivateKeyInput](body)
		if err != nil {
			return nil, nil, err
		}
		keyType, err := setting.PrivateKeyType(in.Key)
		if err != nil {
			return nil, nil, err
		}
		infos, err := describe(in.Certificates)
		if err != nil {
			return nil, nil, err
		}
		out, err := encode(setting.KeyInfo{Present: true, KeyType: keyType, Certificates: infos})
		return out, nil, err

	case setting.SyntaxFile:
		ups, err := decode[[]setting.FileUpload](body)
		if err != nil {
			return nil, nil, err
		}
		limit, hasLimit := intProp(d, setting.PropMaximum)
		infos := make([]setting.FileInfo, 0, len(ups))
		for _, u := range ups {
			if hasLimit && limit > 0 && int64(len(u.Content)) > limit {
				return nil, nil, fmt.Errorf("%s is larger than %d bytes", u.Name, limit)
			}
			infos = append(infos, u.Info())
		}
		out, err := encode(infos)
		return out, nil, err

	default:
		return nil, nil, fmt.Errorf("syntax %s is not supported", d.Syntax)
	}
}

func describe(pems []string) ([]setting.CertInfo, error) {
	infos := make([]setting.CertInfo, 0, len(pems))
	if len(pems) == 0 {
		return infos, nil
	}
	certs, err := setting.ParseCertificates(strings.Join(pems, "\n"))
	if err != nil {
		return nil, err
	}
	for _, c := range certs {
		infos = append(infos, setting.DescribeCertificate(c))
	}
	return infos, nil
}

// CheckPassword reports whether password matches the stored hash of a
// PASSWORD setting, or of the named entry of a NAMED_SECRET setting.
func (s *Server) CheckPassword(key, profile, name, password string) bool {
	s.mu.Lock()
	hash, ok := s.secrets[storeKey{key: key, profile: profile}][name]
	s.mu.Unlock()
	return ok && bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
