// Package keystore persists everything a ceremony participant keeps between
// ceremonies: its long-lived communication identity, a contact book, and the
// threshold groups it belongs to. The store is a single YAML file; key
// packages inside it are hex-encoded CBOR, so the file stays diffable while
// the key material keeps its canonical encoding.
package keystore

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

// Contact is a known peer: a display name, its communication public key, and
// the relay it can usually be reached through.
type Contact struct {
	Name   string       `yaml:"name"`
	PubKey comms.PubKey `yaml:"pubkey"`
	Server string       `yaml:"server,omitempty"`
}

// Group is one threshold group this identity belongs to.
type Group struct {
	Name             string
	Network          string
	Server           string
	KeyPackage       *frost.KeyPackage
	PublicKeyPackage *frost.PublicKeyPackage
	// Participants binds every member's communication key to its ceremony
	// identifier, as resolved during key generation.
	Participants map[comms.PubKey]party.ID
}

type identityFile struct {
	PubKey  string `yaml:"pubkey"`
	PrivKey string `yaml:"privkey"`
}

type groupFile struct {
	Network          string            `yaml:"network"`
	Server           string            `yaml:"server,omitempty"`
	KeyPackage       string            `yaml:"key_package"`
	PublicKeyPackage string            `yaml:"public_key_package"`
	Participants     map[string]uint16 `yaml:"participants"`
}

type storeFile struct {
	Identity *identityFile        `yaml:"identity,omitempty"`
	Contacts map[string]Contact   `yaml:"contacts,omitempty"`
	Groups   map[string]groupFile `yaml:"groups,omitempty"`
}

// Store is an open keystore. Mutations are in-memory until Save.
type Store struct {
	path string
	file storeFile
}

// Load opens the keystore at path. A missing file yields an empty store;
// Save will create it.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "keystore: reading")
	}
	if err := yaml.Unmarshal(data, &s.file); err != nil {
		return nil, errors.Wrap(err, "keystore: parsing")
	}
	return s, nil
}

// Save writes the keystore atomically with owner-only permissions.
func (s *Store) Save() error {
	data, err := yaml.Marshal(&s.file)
	if err != nil {
		return errors.Wrap(err, "keystore: encoding")
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrap(err, "keystore: creating directory")
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "keystore: writing")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "keystore: replacing")
}

// GenerateIdentity creates the communication key pair. It refuses to
// overwrite an existing identity: contacts exchanged under the old key would
// silently stop resolving.
func (s *Store) GenerateIdentity(rng io.Reader) error {
	if s.file.Identity != nil {
		return errors.New("keystore: identity already exists")
	}
	pub, priv, err := ed25519.GenerateKey(rng)
	if err != nil {
		return errors.Wrap(err, "keystore: generating identity")
	}
	s.file.Identity = &identityFile{
		PubKey:  hex.EncodeToString(pub),
		PrivKey: hex.EncodeToString(priv),
	}
	return nil
}

// Identity returns the communication key pair.
func (s *Store) Identity() (comms.PubKey, ed25519.PrivateKey, error) {
	if s.file.Identity == nil {
		return "", nil, errors.New("keystore: no identity, run init first")
	}
	priv, err := hex.DecodeString(s.file.Identity.PrivKey)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return "", nil, errors.New("keystore: corrupt identity key")
	}
	return comms.PubKey(s.file.Identity.PubKey), ed25519.PrivateKey(priv), nil
}

// AddContact inserts or replaces a contact under its name.
func (s *Store) AddContact(c Contact) error {
	if c.Name == "" || c.PubKey == "" {
		return errors.New("keystore: contact needs a name and a pubkey")
	}
	if _, err := c.PubKey.Bytes(); err != nil {
		return errors.Wrap(err, "keystore: contact pubkey")
	}
	if s.file.Contacts == nil {
		s.file.Contacts = make(map[string]Contact)
	}
	s.file.Contacts[c.Name] = c
	return nil
}

// Contact looks a contact up by name.
func (s *Store) Contact(name string) (Contact, error) {
	c, ok := s.file.Contacts[name]
	if !ok {
		return Contact{}, errors.Errorf("keystore: no contact %q", name)
	}
	return c, nil
}

// RemoveContact deletes a contact by name.
func (s *Store) RemoveContact(name string) error {
	if _, ok := s.file.Contacts[name]; !ok {
		return errors.Errorf("keystore: no contact %q", name)
	}
	delete(s.file.Contacts, name)
	return nil
}

// Contacts lists all contacts, sorted by name.
func (s *Store) Contacts() []Contact {
	out := make([]Contact, 0, len(s.file.Contacts))
	for _, c := range s.file.Contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type contactExport struct {
	Name   string `cbor:"1,keyasint"`
	PubKey string `cbor:"2,keyasint"`
	Server string `cbor:"3,keyasint,omitempty"`
}

// ExportContact renders our own identity as a shareable contact string.
func (s *Store) ExportContact(name, server string) (string, error) {
	pub, _, err := s.Identity()
	if err != nil {
		return "", err
	}
	b, err := cbor.Marshal(contactExport{Name: name, PubKey: string(pub), Server: server})
	if err != nil {
		return "", errors.Wrap(err, "keystore: encoding contact")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ImportContact parses a contact string produced by ExportContact.
func ImportContact(encoded string) (Contact, error) {
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Contact{}, errors.Wrap(err, "keystore: contact string is not base64")
	}
	var ce contactExport
	if err := cbor.Unmarshal(b, &ce); err != nil {
		return Contact{}, errors.Wrap(err, "keystore: decoding contact string")
	}
	c := Contact{Name: ce.Name, PubKey: comms.PubKey(ce.PubKey), Server: ce.Server}
	if c.Name == "" || c.PubKey == "" {
		return Contact{}, errors.New("keystore: contact string missing name or pubkey")
	}
	return c, nil
}

// AddGroup inserts or replaces a group under its name.
func (s *Store) AddGroup(g Group) error {
	if g.Name == "" {
		return errors.New("keystore: group needs a name")
	}
	if err := g.KeyPackage.Validate(); err != nil {
		return err
	}
	if err := g.PublicKeyPackage.Validate(); err != nil {
		return err
	}
	kp, err := cbor.Marshal(g.KeyPackage)
	if err != nil {
		return errors.Wrap(err, "keystore: encoding key package")
	}
	pub, err := g.PublicKeyPackage.Bytes()
	if err != nil {
		return errors.Wrap(err, "keystore: encoding public key package")
	}
	participants := make(map[string]uint16, len(g.Participants))
	for pk, id := range g.Participants {
		participants[string(pk)] = uint16(id)
	}
	if s.file.Groups == nil {
		s.file.Groups = make(map[string]groupFile)
	}
	s.file.Groups[g.Name] = groupFile{
		Network:          g.Network,
		Server:           g.Server,
		KeyPackage:       hex.EncodeToString(kp),
		PublicKeyPackage: hex.EncodeToString(pub),
		Participants:     participants,
	}
	return nil
}

// Group looks a group up by name and decodes its key material.
func (s *Store) Group(name string) (Group, error) {
	gf, ok := s.file.Groups[name]
	if !ok {
		return Group{}, errors.Errorf("keystore: no group %q", name)
	}
	g := Group{
		Name:         name,
		Network:      gf.Network,
		Server:       gf.Server,
		Participants: make(map[comms.PubKey]party.ID, len(gf.Participants)),
	}
	kp, err := hex.DecodeString(gf.KeyPackage)
	if err != nil {
		return Group{}, errors.Wrap(err, "keystore: corrupt key package")
	}
	g.KeyPackage = new(frost.KeyPackage)
	if err := cbor.Unmarshal(kp, g.KeyPackage); err != nil {
		return Group{}, errors.Wrap(err, "keystore: decoding key package")
	}
	pub, err := hex.DecodeString(gf.PublicKeyPackage)
	if err != nil {
		return Group{}, errors.Wrap(err, "keystore: corrupt public key package")
	}
	g.PublicKeyPackage = new(frost.PublicKeyPackage)
	if err := cbor.Unmarshal(pub, g.PublicKeyPackage); err != nil {
		return Group{}, errors.Wrap(err, "keystore: decoding public key package")
	}
	for pk, id := range gf.Participants {
		g.Participants[comms.PubKey(pk)] = party.ID(id)
	}
	if err := g.KeyPackage.Validate(); err != nil {
		return Group{}, err
	}
	if err := g.PublicKeyPackage.Validate(); err != nil {
		return Group{}, err
	}
	return g, nil
}

// GroupNames lists the stored groups, sorted.
func (s *Store) GroupNames() []string {
	out := make([]string, 0, len(s.file.Groups))
	for name := range s.file.Groups {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
