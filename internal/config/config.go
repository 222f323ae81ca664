// Package config loads the scan tool's configuration file and resolves
// store credentials from the Cloud Foundry VCAP_SERVICES convention, per
// spec §6. There is no global mutable configuration value: every component
// that needs configuration receives one explicitly, following the
// teacher's "pass configuration, don't reach for it" idiom.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dirscansync/dirscansync/pkg/encoding"
)

// requiredKeys are the only keys a configuration document is required to
// carry; extras are ignored, and any of these missing is fatal at load
// (spec §6).
var requiredKeys = []string{
	"cloudant_account",
	"cloudant_user",
	"cloudant_auth",
	"relationship",
	"host_id",
	"threshold",
}

// Config is the scan tool's immutable, load-time configuration.
type Config struct {
	CloudantAccount string `json:"cloudant_account"`
	CloudantUser    string `json:"cloudant_user"`
	CloudantAuth    string `json:"cloudant_auth"`
	Relationship    string `json:"relationship"`
	HostID          string `json:"host_id"`
	Threshold       int    `json:"threshold"`
}

// Load reads and validates the configuration document at path.
func Load(path string) (*Config, error) {
	raw := make(map[string]interface{})
	if err := encoding.LoadJSON(path, &raw); err != nil {
		return nil, fmt.Errorf("unable to load configuration file %q: %w", path, err)
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("configuration file %q is missing required keys: %v", path, missing)
	}

	var config Config
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("unable to re-encode configuration: %w", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration file %q: %w", path, err)
	}

	return &config, nil
}

// Credentials holds the resolved store connection parameters, whichever
// source supplied them.
type Credentials struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// vcapService is the subset of a VCAP_SERVICES service binding entry this
// module cares about: its credentials block.
type vcapService struct {
	Credentials Credentials `json:"credentials"`
}

// ResolveCredentials implements spec §6's "presence of VCAP_SERVICES (JSON)
// supplies store credentials, otherwise a local vcap-local.json is read."
// cloudantServiceLabel names the service binding key under which the
// document store's credentials are nested in either document's top level.
func ResolveCredentials(cloudantServiceLabel, localPath string) (Credentials, error) {
	if raw, ok := os.LookupEnv("VCAP_SERVICES"); ok && raw != "" {
		return decodeVCAP([]byte(raw), cloudantServiceLabel)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return Credentials{}, fmt.Errorf("unable to read %q: %w", localPath, err)
	}
	return decodeVCAP(data, cloudantServiceLabel)
}

func decodeVCAP(data []byte, label string) (Credentials, error) {
	var services map[string][]vcapService
	if err := json.Unmarshal(data, &services); err != nil {
		return Credentials{}, fmt.Errorf("unable to parse VCAP_SERVICES document: %w", err)
	}
	bindings, ok := services[label]
	if !ok || len(bindings) == 0 {
		return Credentials{}, fmt.Errorf("no %q service binding present", label)
	}
	return bindings[0].Credentials, nil
}
