/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/athleon_scheduler/internal/logging"
	"github.com/friendsincode/athleon_scheduler/internal/models"
	"github.com/friendsincode/athleon_scheduler/internal/scheduling"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a schedule from a constraint file without storing it",
	Long:  "Read a YAML constraint model, build and validate a schedule offline, and print it as JSON or YAML.",
	RunE:  runGenerate,
}

var (
	generateFile    string
	generateEventID string
	generateFormat  string
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&generateFile, "file", "f", "", "Path to the YAML constraint file (required)")
	generateCmd.Flags().StringVar(&generateEventID, "event", "offline", "Event id stamped on the schedule")
	generateCmd.Flags().StringVarP(&generateFormat, "output", "o", "json", "Output format: json or yaml")
	_ = generateCmd.MarkFlagRequired("file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// stdout carries the schedule, so logs go to stderr.
	log := logging.SetupWithWriter(os.Getenv("ATHLEON_ENV"), cmd.ErrOrStderr())

	c, err := loadConstraints(generateFile)
	if err != nil {
		return err
	}
	c.ApplyDefaults(scheduling.DefaultDefaults())

	sched, err := scheduling.NewBuilder().Build(generateEventID, *c)
	if err != nil {
		return fmt.Errorf("build schedule: %w", err)
	}

	result := scheduling.NewValidator(log).Validate(sched)
	for _, issue := range result.Issues {
		log.Warn().
			Str("kind", string(issue.Kind)).
			Str("severity", string(issue.Severity)).
			Msg(issue.Message)
	}
	if !result.Valid {
		return &scheduling.ValidationFailure{Issues: result.Errors()}
	}

	log.Info().
		Int("days", result.Statistics.Days).
		Int("sessions", result.Statistics.Sessions).
		Int("heats", result.Statistics.Heats).
		Int("assignments", result.Statistics.Assignments).
		Msg("schedule built")

	return writeSchedule(cmd.OutOrStdout(), sched, generateFormat)
}

func loadConstraints(path string) (*scheduling.Constraints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constraint file: %w", err)
	}
	var c scheduling.Constraints
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse constraint file: %w", err)
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("constraint file: %w", err)
	}
	return &c, nil
}

func writeSchedule(w io.Writer, sched *models.Schedule, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sched)
	case "yaml":
		// Round-trip through JSON so YAML keys match the API field names.
		raw, err := json.Marshal(sched)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
