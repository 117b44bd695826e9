package config

import (
	"fmt"

	"github.com/spf13/viper"

	"carelink/internal/domain"
	"carelink/internal/mapping"
	"carelink/internal/match"
)

// EndpointSpec is the file schema for one integration endpoint: connection
// details plus its mapping rules and finder configuration.
type EndpointSpec struct {
	ID         string   `mapstructure:"id"`
	Name       string   `mapstructure:"name"`
	Domain     string   `mapstructure:"domain"`
	BaseURL    string   `mapstructure:"base_url"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	CaseTypes  []string `mapstructure:"case_types"`
	LocationID string   `mapstructure:"location_id"`
	Enabled    bool     `mapstructure:"enabled"`

	Mapping []mapping.Rule `mapstructure:"mapping"`
	Finder  *match.Config  `mapstructure:"finder"`
}

// Endpoint converts the decoded entry to its domain form.
func (s EndpointSpec) Endpoint() domain.Endpoint {
	return domain.Endpoint{
		ID:         s.ID,
		Name:       s.Name,
		Domain:     s.Domain,
		BaseURL:    s.BaseURL,
		Username:   s.Username,
		Password:   s.Password,
		CaseTypes:  s.CaseTypes,
		LocationID: s.LocationID,
		Enabled:    s.Enabled,
	}
}

// EndpointsFile is the full endpoint configuration document.
type EndpointsFile struct {
	Endpoints []EndpointSpec `mapstructure:"endpoints"`

	// OwnersByLocation resolves an endpoint's location binding to the
	// owner id new cases are created under.
	OwnersByLocation map[string]string `mapstructure:"owners_by_location"`
}

// LoadEndpoints reads and validates the endpoint configuration file.
func LoadEndpoints(path string) (*EndpointsFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read endpoints config %s: %w", path, err)
	}

	var file EndpointsFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode endpoints config %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Endpoints))
	for _, spec := range file.Endpoints {
		if spec.ID == "" {
			return nil, fmt.Errorf("endpoints config %s: endpoint without id", path)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("endpoints config %s: duplicate endpoint id %q", path, spec.ID)
		}
		seen[spec.ID] = true
		if spec.Domain == "" {
			return nil, fmt.Errorf("endpoints config %s: endpoint %q has no domain", path, spec.ID)
		}
		if spec.BaseURL == "" {
			return nil, fmt.Errorf("endpoints config %s: endpoint %q has no base_url", path, spec.ID)
		}
		if spec.Finder != nil && spec.Finder.Kind == "" {
			return nil, fmt.Errorf("endpoints config %s: endpoint %q finder has no kind", path, spec.ID)
		}
	}
	return &file, nil
}
