package main

import (
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/localattn/attention"
)

// loadConfig reads --config (or the defaults) and applies --backend.
func loadConfig(cmd *cobra.Command) (attention.Config, error) {
	cfg := attention.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = attention.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if name, _ := cmd.Flags().GetString("backend"); name != "" {
		cfg.Backend = name
	}
	return cfg, cfg.Validate()
}

// openBackend constructs the configured backend. The returned release
// function frees device resources.
func openBackend(cfg attention.Config) (attention.Backend, func(), error) {
	backend, release, err := attention.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	klog.V(1).Infof("opened %s", backend.Name())
	return backend, release, nil
}
