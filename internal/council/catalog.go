package council

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/davidbz/symposium/internal/domain"
)

// fallbackKey is the voice used when selection fails. It is excluded from
// the selectable list so the selector cannot pick it explicitly.
const fallbackKey = "generalist"

//go:embed personas/*.yaml
var personaFiles embed.FS

// Persona is a catalogued voice: its spec plus the system prompt text that
// conditions the role.
type Persona struct {
	Spec   domain.VoiceSpec
	Prompt string
}

// Catalog holds the static persona catalog. It is immutable after load.
type Catalog struct {
	personas map[string]Persona
	keys     []string // sorted, fallback excluded
}

type personaFile struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Persona     string `yaml:"persona"`
}

// LoadCatalog parses the embedded persona files.
func LoadCatalog() (*Catalog, error) {
	entries, err := personaFiles.ReadDir("personas")
	if err != nil {
		return nil, fmt.Errorf("failed to read persona files: %w", err)
	}

	catalog := &Catalog{
		personas: make(map[string]Persona),
		keys:     nil,
	}

	for _, entry := range entries {
		data, readErr := personaFiles.ReadFile("personas/" + entry.Name())
		if readErr != nil {
			return nil, fmt.Errorf("failed to read persona %s: %w", entry.Name(), readErr)
		}

		var pf personaFile
		if unmarshalErr := yaml.Unmarshal(data, &pf); unmarshalErr != nil {
			return nil, fmt.Errorf("malformed persona %s: %w", entry.Name(), unmarshalErr)
		}

		if pf.ID == "" || pf.Persona == "" {
			return nil, fmt.Errorf("persona %s is missing id or persona text", entry.Name())
		}

		catalog.personas[pf.ID] = Persona{
			Spec: domain.VoiceSpec{
				Source:      domain.VoiceSourceCatalog,
				Key:         pf.ID,
				Name:        pf.Name,
				Description: pf.Description,
			},
			Prompt: pf.Persona,
		}

		if pf.ID != fallbackKey {
			catalog.keys = append(catalog.keys, pf.ID)
		}
	}

	if len(catalog.personas) == 0 {
		return nil, domain.ErrEmptyCatalog
	}

	if _, exists := catalog.personas[fallbackKey]; !exists {
		return nil, fmt.Errorf("persona catalog has no %q fallback entry", fallbackKey)
	}

	sort.Strings(catalog.keys)

	return catalog, nil
}

// Get returns the persona for a catalogued key.
func (c *Catalog) Get(key string) (Persona, bool) {
	p, exists := c.personas[key]
	return p, exists
}

// SelectableKeys returns the catalogued keys the selector may pick,
// excluding the fallback voice.
func (c *Catalog) SelectableKeys() []string {
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	return keys
}

// Fallback returns the deterministic fallback persona.
func (c *Catalog) Fallback() Persona {
	return c.personas[fallbackKey]
}

// Len returns the number of catalogued personas, fallback included.
func (c *Catalog) Len() int {
	return len(c.personas)
}
