/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/athleon_scheduler/internal/db"
	"github.com/friendsincode/athleon_scheduler/internal/roster"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage event rosters",
}

var rosterImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import categories, WODs and athletes from a YAML file",
	Long:  "Upsert an event roster from YAML. Generate requests that omit athletes, categories or WODs read them from these tables.",
	RunE:  runRosterImport,
}

var rosterFile string

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterImportCmd)

	rosterImportCmd.Flags().StringVarP(&rosterFile, "file", "f", "", "Path to the roster YAML file (required)")
	_ = rosterImportCmd.MarkFlagRequired("file")
}

func runRosterImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	f, err := roster.LoadFile(rosterFile)
	if err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*cfg.StoreTimeout)
	defer cancel()

	result, err := roster.NewRepository(database, cfg.StoreTimeout, logger).Import(ctx, f)
	if err != nil {
		return fmt.Errorf("import roster: %w", err)
	}

	logger.Info().
		Str("event_id", f.EventID).
		Int("categories", result.Categories).
		Int("wods", result.Wods).
		Int("athletes", result.Athletes).
		Msg("roster imported")
	return nil
}
