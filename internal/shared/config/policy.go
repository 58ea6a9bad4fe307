package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy describes the chat assistant persona and its grounding scope.
type Policy struct {
	Organization string   `yaml:"organization"`
	Website      string   `yaml:"website"`
	SocialHandle string   `yaml:"social_handle"`
	SearchSites  []string `yaml:"search_sites"`
	ResultLimit  int      `yaml:"result_limit"`
	MaxTokens    int      `yaml:"max_tokens"`
	Temperature  float64  `yaml:"temperature"`
}

// DefaultPolicy returns the built-in persona.
func DefaultPolicy() Policy {
	return Policy{
		Organization: "FURIA",
		Website:      "furia.gg",
		SocialHandle: "@furia",
		SearchSites:  []string{"furia.gg", "twitter.com/furia", "instagram.com/furia"},
		ResultLimit:  5,
		MaxTokens:    250,
		Temperature:  0.7,
	}
}

// LoadPolicyFile reads a YAML policy file. Unset fields keep their defaults.
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document on top of DefaultPolicy.
func ParsePolicy(data []byte) (Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}
	policy.Organization = strings.TrimSpace(policy.Organization)
	if policy.Organization == "" {
		return Policy{}, fmt.Errorf("policy organization is required")
	}
	if policy.ResultLimit <= 0 {
		policy.ResultLimit = 5
	}
	if policy.ResultLimit > 50 {
		policy.ResultLimit = 50
	}
	if policy.MaxTokens <= 0 {
		policy.MaxTokens = 250
	}
	if policy.Temperature < 0 || policy.Temperature > 2 {
		return Policy{}, fmt.Errorf("policy temperature must be between 0 and 2")
	}
	return policy, nil
}
