package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Host is one worker node of the inventory.
type Host struct {
	Host    string `yaml:"host"`
	WebPort int    `yaml:"web_port"`
	Folder  string `yaml:"folder,omitempty"`
	User    string `yaml:"user,omitempty"`
}

// MonitorURL returns the base URL of the host's monitoring service.
func (h Host) MonitorURL() string {
	port := h.WebPort
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("http://%s:%d", h.Host, port)
}

type inventory struct {
	Hosts []Host `yaml:"hosts"`
}

// LoadHosts reads the inventory file. A missing file yields no hosts.
func LoadHosts(path string) ([]Host, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hosts: %w", err)
	}
	var inv inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("decode hosts: %w", err)
	}
	for i, h := range inv.Hosts {
		if strings.TrimSpace(h.Host) == "" {
			return nil, fmt.Errorf("hosts[%d]: host is required", i)
		}
	}
	return inv.Hosts, nil
}

// SaveHosts rewrites the inventory file.
func SaveHosts(path string, hosts []Host) error {
	data, err := yaml.Marshal(inventory{Hosts: hosts})
	if err != nil {
		return fmt.Errorf("encode hosts: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write hosts: %w", err)
	}
	return nil
}

// HostNames returns the sorted host names of the inventory.
func HostNames(hosts []Host) []string {
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.Host
	}
	sort.Strings(names)
	return names
}
