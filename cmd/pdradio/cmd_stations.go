/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/friendsincode/pdradio/internal/station"
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "List the available stations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION\tQUERY")
		for _, s := range station.Default().List() {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", s.ID, s.Icon, s.Name, s.Description, s.Query)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(stationsCmd)
}
