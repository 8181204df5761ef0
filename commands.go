package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/complyhq/issues-backend/v2/config"
	"github.com/complyhq/issues-backend/v2/events/modules/scans"
	"github.com/complyhq/issues-backend/v2/internal/kafka"
	"github.com/complyhq/issues-backend/v2/internal/lifecycle"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/complyhq/issues-backend/v2/restapi/modules/auth"
	"github.com/complyhq/issues-backend/v2/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func backfillCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Assign fingerprints to issues created before fingerprinting",
		Long: `Backfill computes the fingerprint of every issue that has none, oldest
first. When two legacy issues of one document and framework collide, the
oldest stays active and the others are stored inactive with superseded_by set.

Running it again is a no-op once every issue is fingerprinted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := commandContext(cmd)
			issueStore, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer issueStore.Close()

			report, err := lifecycle.NewBackfiller(issueStore, logger, lifecycleConfig(cfg)).Run(ctx, batchSize)
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", lifecycle.DefaultBackfillBatch, "issues fetched per batch")
	return cmd
}

func readScan(path string, in io.Reader) (model.ScanResults, error) {
	var scan model.ScanResults
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return scan, fmt.Errorf("failed to read scan results: %w", err)
	}
	if err := json.Unmarshal(data, &scan); err != nil {
		return scan, fmt.Errorf("failed to parse scan results: %w", err)
	}
	return scan, scan.Validate()
}

func reconcileCmd() *cobra.Command {
	var (
		file    string
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile one compliance run from a JSON file",
		Long: `Reconcile reads a scan result document (scope plus findings) and
reconciles it against the configured store, printing the run summary.

With --publish the document is sent to the scan topic instead, to be
processed by a running server.`,
		Example: `  issues-backend reconcile --file run.json
  cat run.json | issues-backend reconcile --file - --publish`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			scan, err := readScan(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			if publish {
				producer := scans.NewScanProducer(cfg.Kafka.Brokers, cfg.Kafka.ScanTopic, kafka.Transport(cfg.Kafka))
				defer producer.Close()
				if err := producer.PublishScanCompleted(ctx, scan); err != nil {
					return fmt.Errorf("failed to publish scan: %w", err)
				}
				logger.Info("Scan published",
					zap.String("topic", cfg.Kafka.ScanTopic),
					zap.String("document_id", scan.DocumentID),
					zap.Int("findings", len(scan.Findings)))
				return nil
			}

			issueStore, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer issueStore.Close()

			reconciler := lifecycle.NewReconciler(issueStore, nil, logger, lifecycleConfig(cfg))
			summary, err := reconciler.ReconcileRun(ctx, scan.Scope, scan.Findings)
			if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "scan results JSON file, - for stdin")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish to the scan topic instead of reconciling locally")
	return cmd
}

func fingerprintCmd() *cobra.Command {
	var (
		input     util.FingerprintInput
		algorithm string
	)

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the dedup fingerprint of a finding",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fp, err := util.FingerprintWith(algorithm, input)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), fp)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Title, "title", "", "finding title")
	cmd.Flags().StringVar(&input.Category, "category", "", "finding category")
	cmd.Flags().StringVar(&input.Severity, "severity", "", "finding severity")
	cmd.Flags().StringVar(&input.Description, "description", "", "finding description")
	cmd.Flags().StringVar(&algorithm, "algorithm", util.AlgorithmFNV1a32, "hash algorithm (fnv1a32, xxhash64)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		id  auth.Identity
		ttl time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token signed with the configured JWT secret",
		Example: `  issues-backend token --user compliance-pipeline --role scanner --ttl 720h
  issues-backend token --user alice --workspace ws-1 --workspace ws-2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl)
			if tokens == nil {
				return fmt.Errorf("auth.jwt_secret (JWT_SECRET) is not set")
			}
			if id.UserID == "" {
				return fmt.Errorf("--user is required")
			}
			switch id.Role {
			case auth.RoleAdmin, auth.RoleMember, auth.RoleScanner:
			default:
				return fmt.Errorf("unknown role %q", id.Role)
			}

			token, err := tokens.GenerateJWT(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&id.UserID, "user", "", "user or service id (token subject)")
	cmd.Flags().StringVar(&id.Role, "role", auth.RoleMember, "role: admin, member or scanner")
	cmd.Flags().StringSliceVar(&id.Workspaces, "workspace", nil, "workspace the caller belongs to (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
