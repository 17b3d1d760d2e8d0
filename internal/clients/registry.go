// Package clients holds the closed registry of pre-registered OAuth
// clients. There is no dynamic client registration: clients are loaded once
// at boot, from a YAML file when configured so new integrations do not
// require a redeploy, otherwise from the compiled-in defaults.
package clients

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultScope is granted when the requested scopes and the client's
// allowed scopes have an empty intersection.
const DefaultScope = "files:read"

// Client describes one pre-registered OAuth client.
type Client struct {
	ClientID      string   `yaml:"client_id"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	RedirectURIs  []string `yaml:"redirect_uris"`
	AllowedScopes string   `yaml:"allowed_scopes"` // space-delimited
}

// AllowsRedirectURI checks the exact-match allowlist. No prefix or pattern
// matching: anything but a byte-for-byte match is rejected.
func (c *Client) AllowsRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// IntersectScopes returns the requested scopes narrowed to the client's
// allowlist, preserving request order and dropping unknown scopes silently.
// An empty intersection (or empty request) falls back to DefaultScope.
func (c *Client) IntersectScopes(requested string) string {
	allowed := make(map[string]bool)
	for _, s := range strings.Fields(c.AllowedScopes) {
		allowed[s] = true
	}

	var granted []string
	seen := make(map[string]bool)
	for _, s := range strings.Fields(requested) {
		if allowed[s] && !seen[s] {
			granted = append(granted, s)
			seen[s] = true
		}
	}
	if len(granted) == 0 {
		return DefaultScope
	}
	return strings.Join(granted, " ")
}

// Registry is an immutable in-process client table.
type Registry struct {
	clients map[string]*Client
}

// Get returns the client with the given ID, or nil when unknown.
func (r *Registry) Get(clientID string) *Client {
	return r.clients[clientID]
}

// defaultClients are the integrations shipped with the service.
var defaultClients = []Client{
	{
		ClientID:    "claude-ai-assistant",
		Name:        "Claude AI Assistant",
		Description: "Lets Claude read and organize your files on your behalf",
		RedirectURIs: []string{
			"https://claude.ai/callback",
			"https://claude.ai/oauth/callback",
		},
		AllowedScopes: "files:read files:write",
	},
	{
		ClientID:    "bitatlas-cli",
		Name:        "BitAtlas CLI",
		Description: "Command line sync client",
		RedirectURIs: []string{
			"http://localhost:8765/callback",
		},
		AllowedScopes: "files:read files:write files:delete",
	},
}

// NewRegistry builds the registry. When path is empty the compiled-in
// default clients are used.
func NewRegistry(path string) (*Registry, error) {
	list := defaultClients
	if path != "" {
		loaded, err := loadClientsFile(path)
		if err != nil {
			return nil, err
		}
		list = loaded
	}

	reg := &Registry{clients: make(map[string]*Client, len(list))}
	for i := range list {
		c := &list[i]
		if err := validateClient(c); err != nil {
			return nil, err
		}
		if _, dup := reg.clients[c.ClientID]; dup {
			return nil, fmt.Errorf("duplicate client_id %q", c.ClientID)
		}
		reg.clients[c.ClientID] = c
	}
	return reg, nil
}

func loadClientsFile(path string) ([]Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}
	var doc struct {
		Clients []Client `yaml:"clients"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse clients file: %w", err)
	}
	if len(doc.Clients) == 0 {
		return nil, fmt.Errorf("clients file %s defines no clients", path)
	}
	return doc.Clients, nil
}

func validateClient(c *Client) error {
	if c.ClientID == "" {
		return fmt.Errorf("client with empty client_id")
	}
	if len(c.RedirectURIs) == 0 {
		return fmt.Errorf("client %q has no redirect_uris", c.ClientID)
	}
	if strings.TrimSpace(c.AllowedScopes) == "" {
		return fmt.Errorf("client %q has no allowed_scopes", c.ClientID)
	}
	return nil
}
