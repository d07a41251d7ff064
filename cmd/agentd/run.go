package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentrt/core/internal/config"
	"github.com/agentrt/core/internal/orchestrator"
)

func buildRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "Run a single turn against the configured instance and print the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			inst, err := buildInstance(cfg)
			if err != nil {
				return fmt.Errorf("build instance: %w", err)
			}
			if inst.tracerShutdown != nil {
				defer inst.tracerShutdown(context.Background())
			}
			sessionID := uuid.NewString()
			outcome, err := inst.orchestrator.Run(cmd.Context(), orchestrator.TurnInput{
				SessionID:      sessionID,
				ConversationID: sessionID,
				InstanceID:     cfg.Instance.ID,
				Message:        args[0],
			})
			if err != nil {
				return fmt.Errorf("run turn: %w", err)
			}
			fmt.Printf("status=%s turns=%d\n", outcome.Status, outcome.Turns)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentd.yaml", "Path to YAML configuration file")
	return cmd
}
