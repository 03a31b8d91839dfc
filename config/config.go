// Package config loads the host inventory used by the CLI's remote mode.
// The inventory maps short host aliases to connection defaults so fleet
// scripts do not repeat user/port/key flags for every target.
package config

import (
	"time"

	"github.com/Robpol86/robutils/common"
)

// Inventory is the top-level inventory file structure.
type Inventory struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Defaults   HostSpec   `yaml:"defaults,omitempty"`
	Hosts      []HostSpec `yaml:"hosts"`
}

// HostSpec holds one host's connection settings. Zero fields fall back to
// the inventory defaults, then to the library defaults.
type HostSpec struct {
	Name           string `yaml:"name,omitempty"`
	Address        string `yaml:"address,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	User           string `yaml:"user,omitempty"`
	PrivateKeyPath string `yaml:"privateKeyPath,omitempty"`
	// ConnectTimeoutSec is in whole seconds; yaml has no duration type.
	ConnectTimeoutSec int `yaml:"connectTimeoutSec,omitempty"`
}

// ConnectTimeout returns the dial timeout as a duration.
func (h HostSpec) ConnectTimeout() time.Duration {
	return time.Duration(h.ConnectTimeoutSec) * time.Second
}

// Lookup resolves an alias or address against the inventory, merging in the
// defaults. Unknown names return a spec with the name used as address, so an
// inventory is never required to address a host directly.
func (inv *Inventory) Lookup(name string) HostSpec {
	for _, h := range inv.Hosts {
		if h.Name == name || h.Address == name {
			return inv.merge(h)
		}
	}
	return inv.merge(HostSpec{Name: name, Address: name})
}

func (inv *Inventory) merge(h HostSpec) HostSpec {
	if h.Address == "" {
		h.Address = h.Name
	}
	if h.Port == 0 {
		h.Port = inv.Defaults.Port
	}
	if h.Port == 0 {
		h.Port = common.DefaultSSHPort
	}
	if h.User == "" {
		h.User = inv.Defaults.User
	}
	if h.PrivateKeyPath == "" {
		h.PrivateKeyPath = inv.Defaults.PrivateKeyPath
	}
	if h.ConnectTimeoutSec == 0 {
		h.ConnectTimeoutSec = inv.Defaults.ConnectTimeoutSec
	}
	if h.ConnectTimeoutSec == 0 {
		h.ConnectTimeoutSec = int(common.DefaultConnectTimeout / time.Second)
	}
	return h
}
