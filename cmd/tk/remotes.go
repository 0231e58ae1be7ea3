package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// RemotesConfig is the remotes file: named tracker servers and the one
// commands target by default.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is a named tracker server. User is the login commands act as
// when neither --user nor TRACKER_USER is given.
type Remote struct {
	URL      string `toml:"url"`
	GRPCAddr string `toml:"grpc_addr,omitempty"`
	Token    string `toml:"token,omitempty"`
	User     string `toml:"user,omitempty"`
}

func (r Remote) validate() error {
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", r.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid url %q: want http(s)://host[:port]", r.URL)
	}
	if r.GRPCAddr != "" {
		if _, _, err := net.SplitHostPort(r.GRPCAddr); err != nil {
			return fmt.Errorf("invalid grpc address %q: %w", r.GRPCAddr, err)
		}
	}
	return nil
}

// maskedToken hides all but the first 8 characters of the token. Short
// masks the tail with "...", otherwise with one '*' per character.
func (r Remote) maskedToken(short bool) string {
	if len(r.Token) <= 8 {
		return r.Token
	}
	if short {
		return r.Token[:8] + "..."
	}
	return r.Token[:8] + strings.Repeat("*", len(r.Token)-8)
}

func errUnknownRemote(name string) error {
	return fmt.Errorf("remote %q not found", name)
}

// Add inserts or replaces a remote.
func (c *RemotesConfig) Add(name string, r Remote) error {
	if name == "" {
		return errors.New("remote name must not be empty")
	}
	if err := r.validate(); err != nil {
		return err
	}
	c.Remotes[name] = r
	return nil
}

// Remove deletes a remote, clearing the active remote if it was that one.
func (c *RemotesConfig) Remove(name string) error {
	if _, ok := c.Remotes[name]; !ok {
		return errUnknownRemote(name)
	}
	delete(c.Remotes, name)
	if c.Active == name {
		c.Active = ""
	}
	return nil
}

func (c *RemotesConfig) Use(name string) error {
	if _, ok := c.Remotes[name]; !ok {
		return errUnknownRemote(name)
	}
	c.Active = name
	return nil
}

// Lookup returns the named remote, or the active one for an empty name.
func (c *RemotesConfig) Lookup(name string) (string, Remote, error) {
	if name == "" {
		name = c.Active
	}
	if name == "" {
		return "", Remote{}, errors.New("no active remote; specify a name or run 'tk remote use <name>'")
	}
	r, ok := c.Remotes[name]
	if !ok {
		return "", Remote{}, errUnknownRemote(name)
	}
	return name, r, nil
}

// Names returns the remote names in order.
func (c *RemotesConfig) Names() []string {
	names := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// remoteConfigPath is ~/.local/state/tracker/remotes.toml. The directory
// is private to the user since the file holds tokens.
func remoteConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "tracker")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "remotes.toml"), nil
}

func loadRemotesConfig() (RemotesConfig, error) {
	cfg := RemotesConfig{Remotes: map[string]Remote{}}
	path, err := remoteConfigPath()
	if err != nil {
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

func saveRemotesConfig(cfg RemotesConfig) error {
	path, err := remoteConfigPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// updateRemotes applies fn to the remotes file and saves it if fn
// succeeds.
func updateRemotes(fn func(*RemotesConfig) error) error {
	cfg, err := loadRemotesConfig()
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	return saveRemotesConfig(cfg)
}

// activeRemote is read once per process; an unreadable file means no
// active remote.
var activeRemote = sync.OnceValue(func() Remote {
	cfg, err := loadRemotesConfig()
	if err != nil {
		return Remote{}
	}
	_, r, err := cfg.Lookup("")
	if err != nil {
		return Remote{}
	}
	return r
})
