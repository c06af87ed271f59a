// Command listing-tool runs pieces of the listing pipeline from a terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/raine/telegram-ebay-bot/internal/config"
	"github.com/raine/telegram-ebay-bot/internal/ebay"
	"github.com/raine/telegram-ebay-bot/internal/listing"
	"github.com/raine/telegram-ebay-bot/internal/llm"
	"github.com/raine/telegram-ebay-bot/internal/photo"
	"github.com/raine/telegram-ebay-bot/internal/shipping"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	config.LoadEnvFile()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "listing-tool",
		Short:        "Operator tools for the eBay listing bot",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to config.yaml")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}
	root.AddCommand(newClassifyCmd(load), newAnalyzeCmd(load), newAuthURLCmd(load))
	return root
}

type configLoader func() (*config.Config, error)

func newClassifyCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <weight>",
		Short: "Show the weight class and shipping policy for a weight such as 0,3 kg",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			classifier, err := shipping.New(cfg.Shipping)
			if err != nil {
				return err
			}
			kg := shipping.ParseWeight(args[0])
			class := classifier.Classify(kg)
			out := cmd.OutOrStdout()
			if kg == nil {
				fmt.Fprintf(out, "weight: unknown\n")
			} else {
				fmt.Fprintf(out, "weight: %.3f kg\n", *kg)
			}
			fmt.Fprintf(out, "class:  %s\npolicy: %s\n", class, classifier.PolicyFor(class))
			return nil
		},
	}
}

func newAnalyzeCmd(load configLoader) *cobra.Command {
	var profileID string
	var hints llm.Hints
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Run the vision analysis on a local photo and print the listing draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Gemini.APIKey == "" {
				return fmt.Errorf("GEMINI_API_KEY is not set")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			prepared, err := photo.Prepare(data, photo.DefaultMaxDimension)
			if err != nil {
				return err
			}

			classifier, err := shipping.New(cfg.Shipping)
			if err != nil {
				return err
			}
			catalog, err := listing.NewCatalog(cfg.ProfileList(), cfg.Profiles.Default, cfg.Profiles.Templates)
			if err != nil {
				return err
			}
			profile := catalog.GetProfile(profileID)

			var classes []string
			for _, c := range classifier.Classes() {
				classes = append(classes, string(c))
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Gemini.Timeout)
			defer cancel()
			analyzer, err := llm.NewGeminiAnalyzer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, classes)
			if err != nil {
				return err
			}
			resp, err := analyzer.Analyze(ctx, llm.Request{
				ImageData:   prepared.Data,
				MIMEType:    prepared.MIMEType,
				Hints:       hints,
				ProfileHint: profile.AIHint,
				Thresholds:  classifier.PromptThresholds(),
			})
			if err != nil {
				return err
			}

			ai := llm.Normalize(resp.Raw, classifier)
			fields := map[string]string{"brand": hints.Brand, "model": hints.Model, "year": hints.Year}
			description, err := catalog.BuildDescription(ai, fields, profile)
			if err != nil {
				return err
			}
			printDraft(cmd.OutOrStdout(), profile, ai, listing.BuildTitle(ai, fields, profile), description, classifier)
			fmt.Fprintf(cmd.OutOrStdout(), "\ntokens: %d in, %d out ($%.5f)\n",
				resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.CostUSD)
			return nil
		},
	}
	cmd.Flags().StringVar(&profileID, "profile", "", "profile id (default from config)")
	cmd.Flags().StringVar(&hints.Brand, "brand", "", "brand hint")
	cmd.Flags().StringVar(&hints.Model, "model", "", "model hint")
	cmd.Flags().StringVar(&hints.Year, "year", "", "year hint")
	return cmd
}

func printDraft(w io.Writer, profile *listing.Profile, ai *llm.Result, title, description string, classifier *shipping.Classifier) {
	fmt.Fprintf(w, "profile: %s\n", profile.ID)
	fmt.Fprintf(w, "title:   %s\n", title)
	if ai.EstimatedWeightKg != nil {
		fmt.Fprintf(w, "weight:  %.2f kg\n", *ai.EstimatedWeightKg)
	}
	fmt.Fprintf(w, "class:   %s (policy %s)\n", ai.WeightClass, classifier.PolicyFor(ai.WeightClass))
	if len(ai.Tags) > 0 {
		fmt.Fprintf(w, "tags:    %s\n", strings.Join(ai.Tags, ", "))
	}
	fmt.Fprintf(w, "\n%s\n", description)
}

func newAuthURLCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-url",
		Short: "Print the eBay consent URL for the seller account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Ebay.ClientID == "" || cfg.Ebay.RuName == "" {
				return fmt.Errorf("EBAY_CLIENT_ID and EBAY_RU_NAME are required")
			}
			provider := ebay.NewCredentialProvider(cfg.AuthConfig(), nil)
			fmt.Fprintln(cmd.OutOrStdout(), provider.AuthCodeURL(cfg.Ebay.CallbackState))
			return nil
		},
	}
}
