// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"

	"github.com/authbridge/authbridge/pkg/upstream"
)

// loadSources reads the configuration file named by --config and returns the
// declared sources keyed by source id. The map key doubles as the source id
// when a source does not set one explicitly.
func loadSources() (map[string]upstream.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("no configuration file specified, use --config flag")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading configuration %s: %w", path, err)
	}

	var sources map[string]upstream.Config
	if err := v.UnmarshalKey("sources", &sources); err != nil {
		return nil, fmt.Errorf("parsing sources in %s: %w", path, err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("configuration %s defines no sources", path)
	}

	for id, cfg := range sources {
		if cfg.SourceID == "" {
			cfg.SourceID = id
			sources[id] = cfg
		}
	}
	return sources, nil
}

// loadSource returns the single named source from the configuration file.
func loadSource(sourceID string) (upstream.Config, error) {
	sources, err := loadSources()
	if err != nil {
		return upstream.Config{}, err
	}

	cfg, ok := sources[sourceID]
	if !ok {
		return upstream.Config{}, fmt.Errorf("source %q not found (configured: %v)", sourceID, sourceNames(sources))
	}
	return cfg, nil
}

func sourceNames(sources map[string]upstream.Config) []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
