// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/authbridge/authbridge/pkg/upstream"
)

func newDiscoveryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discovery <source>",
		Short: "Fetch and validate a source's OIDC discovery document",
		Long: `Fetch the OIDC discovery document for the named source, run the same
validation the engine applies (required fields, HTTPS endpoints, issuer
match), and print the validated document as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSource(args[0])
			if err != nil {
				return err
			}
			resolved, err := cfg.Resolve()
			if err != nil {
				return err
			}
			if resolved.Issuer == "" && resolved.DiscoveryURL == "" {
				return fmt.Errorf("source %q configures explicit endpoints and does not use discovery", args[0])
			}

			doc, err := upstream.NewDiscoveryResolver(&resolved, nil).Resolve(cmd.Context())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
