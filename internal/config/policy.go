package config

import "github.com/wolfman30/clinicops/pkg/resilience"

// CallPolicy derives the data-access call policy from configuration.
func (c *Config) CallPolicy() resilience.Policy {
	p := resilience.DefaultPolicy()
	if c == nil {
		return p
	}
	if c.CallTimeout > 0 {
		p.Timeout = c.CallTimeout
	}
	if c.CallMaxRetries >= 0 {
		p.MaxRetries = c.CallMaxRetries
	}
	return p
}
