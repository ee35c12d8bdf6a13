// Package credentials keeps provider API keys in .parlor/credentials.toml and
// decides which key a server hands to its agent.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/parlor/pkg/dotdir"
)

const fileName = "credentials.toml"

// Provider is an agent provider that authenticates with an API key.
type Provider struct {
	Name   string
	EnvVar string
}

var providers = []Provider{
	{Name: "openai", EnvVar: "OPENAI_API_KEY"},
	{Name: "anthropic", EnvVar: "ANTHROPIC_API_KEY"},
}

// File is the on-disk layout of credentials.toml.
type File struct {
	Version int            `toml:"version"`
	Keys    map[string]Key `toml:"keys"`
}

// Key is one stored provider key.
type Key struct {
	APIKey  string    `toml:"api_key"`
	SavedAt time.Time `toml:"saved_at"`
}

// Source tells where a resolved key came from.
type Source string

const (
	SourceNone     Source = ""
	SourceExplicit Source = "config"
	SourceEnv      Source = "env"
	SourceStored   Source = "credentials"
)

// Store reads and writes a single credentials.toml.
type Store struct {
	path string
	now  func() time.Time
}

// Open resolves credentials.toml inside the .parlor directory picked by
// override (see dotdir.Manager.Target). The file itself is created lazily.
func Open(override string) (*Store, error) {
	path, err := dotdir.NewManager().Path(override, fileName)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, now: time.Now}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Read returns the stored keys. A missing file reads as empty.
func (s *Store) Read() (*File, error) {
	f := &File{Keys: map[string]Key{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	if err := toml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	if f.Keys == nil {
		f.Keys = map[string]Key{}
	}
	return f, nil
}

// Write replaces credentials.toml. The file is readable by the owner only.
func (s *Store) Write(f *File) error {
	if f == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

func (s *Store) update(fn func(f *File)) error {
	f, err := s.Read()
	if err != nil {
		return err
	}
	fn(f)
	return s.Write(f)
}

// Put stores apiKey for provider, replacing any earlier key.
func (s *Store) Put(provider, apiKey string) error {
	return s.update(func(f *File) {
		f.Keys[provider] = Key{APIKey: apiKey, SavedAt: s.now().UTC().Truncate(time.Second)}
	})
}

// Get returns the stored key for provider.
func (s *Store) Get(provider string) (Key, bool, error) {
	f, err := s.Read()
	if err != nil {
		return Key{}, false, err
	}
	k, ok := f.Keys[provider]
	return k, ok, nil
}

// Remove deletes the key for provider. Removing an absent key succeeds.
func (s *Store) Remove(provider string) error {
	return s.update(func(f *File) {
		delete(f.Keys, provider)
	})
}

// Stored returns the providers with a stored key, sorted.
func (s *Store) Stored() ([]string, error) {
	f, err := s.Read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Keys))
	for name := range f.Keys {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Resolve picks the key an agent for provider should use: explicit, then the
// provider's environment variable, then the stored key. Providers that need
// no key resolve to explicit unchanged.
func (s *Store) Resolve(provider, explicit string) (string, Source, error) {
	if explicit != "" {
		return explicit, SourceExplicit, nil
	}

	p, ok := Lookup(provider)
	if !ok {
		return "", SourceNone, nil
	}
	if v := os.Getenv(p.EnvVar); v != "" {
		return v, SourceEnv, nil
	}

	k, ok, err := s.Get(p.Name)
	if err != nil || !ok {
		return "", SourceNone, err
	}
	return k.APIKey, SourceStored, nil
}

// Lookup finds a key-based provider by name, ignoring case.
func Lookup(name string) (Provider, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	i := slices.IndexFunc(providers, func(p Provider) bool { return p.Name == name })
	if i < 0 {
		return Provider{}, false
	}
	return providers[i], true
}

// Names lists the key-based providers.
func Names() []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name
	}
	return names
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}
