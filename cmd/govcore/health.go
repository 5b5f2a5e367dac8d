package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/service"
)

func healthCmd(configPath *string) *cobra.Command {
	var fitness float64

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Dry-run the rollback decision for an aggregate fitness",
		Long: `Runs the federation rollback manager once against an in-memory
consensus engine seeded with the configured clusters, and prints the
rollback proposal it would execute. Nothing is persisted or published.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			self := federation.ClusterInfo{ID: cfg.Federation.ClusterID, Name: cfg.Federation.ClusterName, Region: cfg.Federation.Region}
			infos := clusterInfos(self, cfg.Federation.Clusters)
			ids := make([]string, len(infos))
			for i, c := range infos {
				ids[i] = c.ID
			}

			consensus := service.NewConsensusEngine(ids, nil, nil)
			rollback := service.NewFederationRollbackManager(consensus, cfg.Federation.CriticalThreshold, nil)
			p, err := rollback.EvaluateHealth(cmd.Context(), fitness)
			if err != nil {
				return err
			}

			out := map[string]any{
				"aggregate_fitness":  fitness,
				"critical_threshold": rollback.Threshold(),
				"rollback":           p != nil,
			}
			if p != nil {
				out["proposal"] = p
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().Float64Var(&fitness, "fitness", 0, "aggregate federation fitness in [0,1]")
	_ = cmd.MarkFlagRequired("fitness")
	return cmd
}
