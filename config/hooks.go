package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HookSpec declares one threshold hook subscription: which built-in handler
// kind fires at which exact credit amount.
type HookSpec struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Threshold int64  `yaml:"threshold"`
}

// HookManifest is the yaml document listing threshold hook subscriptions.
type HookManifest struct {
	Hooks []HookSpec `yaml:"hooks"`
}

// DefaultHookManifest mirrors the stock production subscriptions: the bonus
// voucher and infinity reward both fire on the 30,000-point step-up credit.
func DefaultHookManifest() HookManifest {
	return HookManifest{Hooks: []HookSpec{
		{Name: "bonus-voucher", Kind: "voucher", Threshold: 30_000},
		{Name: "infinity-reward", Kind: "infinity", Threshold: 30_000},
	}}
}

// LoadHookManifest parses the manifest at path. An empty path yields the
// default subscriptions.
func LoadHookManifest(path string) (HookManifest, error) {
	if path == "" {
		return DefaultHookManifest(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return HookManifest{}, fmt.Errorf("read hook manifest: %w", err)
	}
	var manifest HookManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return HookManifest{}, fmt.Errorf("parse hook manifest: %w", err)
	}
	for _, hook := range manifest.Hooks {
		if hook.Name == "" || hook.Kind == "" {
			return HookManifest{}, fmt.Errorf("hook manifest entry missing name or kind")
		}
		if hook.Threshold <= 0 {
			return HookManifest{}, fmt.Errorf("hook %q: threshold must be positive", hook.Name)
		}
	}
	return manifest, nil
}
