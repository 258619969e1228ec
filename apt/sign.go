package apt

import (
	"bytes"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/etnz/apt-release-mirror/errs"
	"github.com/pkg/errors"
)

// Signer signs Release files with an OpenPGP private key.
type Signer struct {
	entity *openpgp.Entity
}

// NewSigner reads the first unencrypted private key of an ASCII-armored key
// ring.
func NewSigner(armoredKey string) (*Signer, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return nil, errs.New(errs.KindConfig, "read signing key", err)
	}
	for _, e := range entities {
		if e.PrivateKey == nil {
			continue
		}
		if e.PrivateKey.Encrypted {
			return nil, errs.Errorf(errs.KindConfig, "read signing key", "private key %s is passphrase protected", e.PrimaryKey.KeyIdString())
		}
		return &Signer{entity: e}, nil
	}
	return nil, errs.Errorf(errs.KindConfig, "read signing key", "no private key found")
}

// ClearSign returns data as an armored clearsigned message, the content of an
// InRelease file.
func (s *Signer) ClearSign(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := clearsign.Encode(&out, s.entity.PrivateKey, nil)
	if err != nil {
		return nil, errors.Wrap(err, "clearsign")
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "clearsign")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "clearsign")
	}
	return out.Bytes(), nil
}

// DetachSign returns an armored detached signature of data, the content of a
// Release.gpg file.
func (s *Signer) DetachSign(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&out, s.entity, bytes.NewReader(data), nil); err != nil {
		return nil, errors.Wrap(err, "detach sign")
	}
	return out.Bytes(), nil
}

// PublicKey exports the armored public key matching the signing key.
func (s *Signer) PublicKey() ([]byte, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := s.entity.Serialize(w); err != nil {
		return nil, errors.Wrap(err, "export public key")
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
