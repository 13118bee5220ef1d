package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/compare"
	"github.com/everstacklabs/depmerge/internal/config"
	"github.com/everstacklabs/depmerge/internal/errkind"
	"github.com/everstacklabs/depmerge/internal/output"
	"github.com/everstacklabs/depmerge/internal/override"
	"github.com/everstacklabs/depmerge/internal/platform"
	"github.com/everstacklabs/depmerge/internal/platform/gerritclient"
	"github.com/everstacklabs/depmerge/internal/platform/githubclient"
	"github.com/everstacklabs/depmerge/internal/submit"
	"github.com/everstacklabs/depmerge/internal/urlparse"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "depmerge",
		Short: "Bulk-merge similar automation changes",
		Long: "Given one pull request or Gerrit change, finds all similar open changes\n" +
			"across the organization and reviews and merges them in one pass.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		mergeCmd(),
		scanCmd(),
		tokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(errkind.KindOf(err).ExitCode())
	}
}

func mergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <change-url>",
		Short: "Find similar open changes and review+merge them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			overrideToken, _ := cmd.Flags().GetString("override")
			updateBranches, _ := cmd.Flags().GetBool("update-branches")

			ctx := cmd.Context()
			target, client, scope, err := resolveTarget(ctx, cfg, args[0])
			if err != nil {
				return err
			}

			scan, err := findSimilar(ctx, cfg, client, scope, target, overrideToken)
			if err != nil {
				return err
			}
			source, similar := scan.source, scan.similar

			if updateBranches && target.Source == change.SourceGitHub {
				fixBranches(ctx, client, similar)
			}

			items := make([]submit.Item, len(similar))
			overrideOK := overrideToken != "" && override.Validate(source.Author, source.OverrideSubject(), overrideToken)
			for i, cand := range similar {
				items[i] = submit.Item{
					Change:            cand.Change,
					Comparison:        &cand.Comparison,
					RequiresOverride:  cfg.OnlyAutomation && !compare.IsAutomationChange(cand.Change),
					OverrideValidated: overrideOK,
				}
			}

			runner := submit.NewRunner(client, submit.Options{
				MaxConcurrency: cfg.MaxConcurrency,
				MaxAttempts:    cfg.MaxAttempts,
				DryRun:         cfg.DryRun,
			})
			results, err := runner.Run(ctx, items)
			if err != nil {
				return err
			}

			report := &output.RunReport{
				Source:  source,
				DryRun:  cfg.DryRun,
				Results: results,
				Summary: output.Summarize(results),
			}
			format, err := output.ParseFormat(cfg.Output)
			if err != nil {
				return err
			}
			if err := output.WriteRun(os.Stdout, report, format); err != nil {
				return err
			}

			if report.Summary.Failed > 0 {
				return errkind.New(errkind.SubmitOp,
					fmt.Sprintf("%d of %d changes failed", report.Summary.Failed, len(results)))
			}
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "Show what would be merged without merging")
	cmd.Flags().Float64("threshold", 0, "Minimum similarity confidence (default: from config)")
	cmd.Flags().String("override", "", "Override token for non-automation source changes")
	cmd.Flags().Bool("no-automation-filter", false, "Also consider changes not authored by automation")
	cmd.Flags().Bool("update-branches", false, "Update behind GitHub branches before merging")
	cmd.Flags().StringP("output", "o", "", "Output format: text, json, or yaml")

	return cmd
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <change-url>",
		Short: "List similar open changes without touching them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			target, client, scope, err := resolveTarget(ctx, cfg, args[0])
			if err != nil {
				return err
			}

			overrideToken, _ := cmd.Flags().GetString("override")
			scan, err := findSimilar(ctx, cfg, client, scope, target, overrideToken)
			if err != nil {
				return err
			}

			report := &output.ScanReport{
				Source:     scan.source,
				Considered: scan.considered,
				Similar:    scan.similar,
			}
			format, err := output.ParseFormat(cfg.Output)
			if err != nil {
				return err
			}
			return output.WriteScan(os.Stdout, report, format)
		},
	}

	cmd.Flags().Float64("threshold", 0, "Minimum similarity confidence (default: from config)")
	cmd.Flags().String("override", "", "Override token for non-automation source changes")
	cmd.Flags().Bool("no-automation-filter", false, "Also consider changes not authored by automation")
	cmd.Flags().StringP("output", "o", "", "Output format: text, json, or yaml")

	return cmd
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <change-url>",
		Short: "Print the override token for a non-automation change",
		Long: "Prints the token that authorizes bulk-merging changes similar to one\n" +
			"not authored by a known automation tool. Pass it to merge --override.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			target, client, _, err := resolveTarget(ctx, cfg, args[0])
			if err != nil {
				return err
			}

			source, err := client.FetchChange(ctx, target.Project, target.Number)
			if err != nil {
				return err
			}

			if compare.IsAutomationChange(source) {
				slog.Info("change is automation-authored; no override needed",
					"project", source.Project, "number", source.Number)
			}
			fmt.Println(override.Generate(source.Author, source.OverrideSubject()))
			return nil
		},
	}
}

// scanResult is what findSimilar hands back to both scan and merge.
type scanResult struct {
	source     *change.Info
	considered int
	similar    []output.Candidate
}

// findSimilar fetches the source change, enforces the override policy, and
// compares every open change in scope against it.
func findSimilar(ctx context.Context, cfg *config.Config, client platform.Client, scope platform.Scope, target *urlparse.Target, overrideToken string) (*scanResult, error) {
	source, err := client.FetchChange(ctx, target.Project, target.Number)
	if err != nil {
		return nil, err
	}
	slog.Info("source change fetched",
		"project", source.Project, "number", source.Number,
		"author", source.Author, "title", source.Title)

	overrideOK := false
	if overrideToken != "" {
		if !override.Validate(source.Author, source.OverrideSubject(), overrideToken) {
			return nil, errkind.New(errkind.Validation, "override token does not match the source change")
		}
		overrideOK = true
	}

	if cfg.OnlyAutomation && !compare.IsAutomationChange(source) && !overrideOK {
		return nil, errkind.New(errkind.Validation,
			"source change is not automation-authored; generate a token with 'depmerge token' and pass it via --override")
	}

	candidates, err := client.ListOpenChanges(ctx, scope, cfg.ListLimit)
	if err != nil {
		return nil, err
	}

	opts := compare.Options{
		Threshold:          cfg.Threshold,
		OnlyAutomation:     cfg.OnlyAutomation,
		OverrideAuthorized: overrideOK,
		Weights: compare.Weights{
			Title:  cfg.Weights.Title,
			Files:  cfg.Weights.Files,
			Body:   cfg.Weights.Body,
			Author: cfg.Weights.Author,
		},
	}

	res := &scanResult{source: source}
	for _, cand := range candidates {
		if cand.SameChange(source) {
			continue
		}
		res.considered++
		result := compare.Compare(source, cand, opts)
		slog.Debug("compared change",
			"project", cand.Project, "number", cand.Number,
			"confidence", result.ConfidenceScore, "similar", result.IsSimilar)
		if result.IsSimilar {
			res.similar = append(res.similar, output.Candidate{Change: cand, Comparison: result})
		}
	}

	slog.Info("scan complete", "considered", res.considered, "similar", len(res.similar))
	return res, nil
}

// fixBranches best-effort updates behind GitHub branches so merges do not
// fail on "branch out of date". Failures are logged, not fatal.
func fixBranches(ctx context.Context, client platform.Client, similar []output.Candidate) {
	gh, ok := client.(*githubclient.Client)
	if !ok {
		return
	}
	for _, cand := range similar {
		if cand.Change.Mergeable {
			continue
		}
		if err := gh.UpdateBranch(ctx, cand.Change); err != nil {
			slog.Warn("branch update failed",
				"project", cand.Change.Project, "number", cand.Change.Number, "error", err)
		}
	}
}

// resolveTarget parses the change URL and builds the matching platform
// client. GitHub scans are org-wide; Gerrit scans cover the whole server.
func resolveTarget(ctx context.Context, cfg *config.Config, rawURL string) (*urlparse.Target, platform.Client, platform.Scope, error) {
	target, err := urlparse.Parse(rawURL)
	if err != nil {
		return nil, nil, platform.Scope{}, err
	}

	switch target.Source {
	case change.SourceGitHub:
		opts := []githubclient.Option{
			githubclient.WithRateLimit(cfg.GitHub.RateLimit),
			githubclient.WithMergeMethod(cfg.GitHub.MergeMethod),
		}
		if cfg.GitHub.BaseURL != "" {
			opts = append(opts, githubclient.WithBaseURL(cfg.GitHub.BaseURL))
		}
		client, err := githubclient.New(ctx, cfg.GitHub.Token, opts...)
		if err != nil {
			return nil, nil, platform.Scope{}, err
		}
		return target, client, platform.Scope{Org: target.Owner()}, nil

	case change.SourceGerrit:
		baseURL := "https://" + target.Host
		if target.BasePath != "" {
			baseURL += "/" + target.BasePath
		}
		opts := []gerritclient.Option{
			gerritclient.WithRateLimit(cfg.Gerrit.RateLimit),
		}
		if cfg.Gerrit.Username != "" {
			opts = append(opts, gerritclient.WithCredentials(cfg.Gerrit.Username, cfg.Gerrit.Password))
		}
		client, err := gerritclient.New(baseURL, opts...)
		if err != nil {
			return nil, nil, platform.Scope{}, err
		}
		return target, client, platform.Scope{}, nil

	default:
		return nil, nil, platform.Scope{}, errkind.New(errkind.Validation, "unsupported platform")
	}
}

// loadConfig merges the config file with command-line flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("threshold"); f != nil && f.Changed {
		cfg.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Changed {
		cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}
	if f := cmd.Flags().Lookup("no-automation-filter"); f != nil && f.Changed {
		noFilter, _ := cmd.Flags().GetBool("no-automation-filter")
		cfg.OnlyAutomation = !noFilter
	}
	if f := cmd.Flags().Lookup("output"); f != nil && f.Changed {
		cfg.Output, _ = cmd.Flags().GetString("output")
	}

	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
