// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the sources configuration file",
		Long: `Validate every source in the configuration file: template references,
provider names, required credentials and endpoint URLs. Exits non-zero on the
first invalid source.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			sources, err := loadSources()
			if err != nil {
				return err
			}

			for _, name := range sourceNames(sources) {
				resolved, err := sources[name].Resolve()
				if err != nil {
					return fmt.Errorf("source %q: %w", name, err)
				}
				fmt.Printf("%s: ok (provider %s)\n", name, resolved.Provider)
			}
			return nil
		},
	}
}
