// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/authbridge/authbridge/pkg/state"
	"github.com/authbridge/authbridge/pkg/upstream"
)

func newAuthorizeURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize-url <source>",
		Short: "Generate an authorization URL for a source",
		Long: `Build the authorization redirect URL the engine would send a user to for
the named source. Useful for manually walking a flow against a real provider;
note the flow state behind the printed state id lives only in this process.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSource(args[0])
			if err != nil {
				return err
			}

			engine, err := upstream.NewEngine(cfg, state.NewMemoryStore(),
				upstream.WithPKCEStore(state.NewMemoryPKCEStore()))
			if err != nil {
				return err
			}

			red, err := engine.Authenticate(cmd.Context(), upstream.FlowState{})
			if err != nil {
				return err
			}

			fmt.Println(red.URL)
			fmt.Printf("state id: %s\n", red.StateID)
			return nil
		},
	}
}
