package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"study-planner/internal/app"
	"study-planner/internal/config"
	"study-planner/internal/helper"
	"study-planner/internal/models"
	"study-planner/internal/parser"
	"study-planner/internal/server"
	"study-planner/internal/workflow"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./configs/config.yaml"

var (
	configPath string
	sessionID  string
	jsonOutput bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "study-planner",
		Short: "Syllabus driven study planner",
		Long: `Study planner indexes a syllabus and uses an LLM to write weekly plans,
answer doubts grounded in the syllabus and generate revision notes.

Examples:
  study-planner serve
  study-planner ingest --file syllabus.pdf --session alice
  study-planner ask --session alice --query "What is a derivative?"`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !models.ValidSourceID(sessionID) {
				return fmt.Errorf("%w: --session must be 1-64 letters, digits, '_' or '-', got %q", models.ErrInput, sessionID)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to the YAML config")
	cmd.PersistentFlags().StringVar(&sessionID, "session", server.DefaultSessionID, "Session whose syllabus index is used")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	cmd.AddCommand(newServeCmd(), newIngestCmd(), newPlanCmd(), newAskCmd(), newNotesCmd(), newExportCmd(), newImportCmd(), newResetCmd())
	return cmd
}

// bootstrap loads .env and the config, then builds the app.
func bootstrap(ctx context.Context) (*app.App, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	helper.SetupLogger(cfg.Logging.Level, cfg.Logging.Console)
	return app.New(ctx, cfg)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.NewServer(a.HTTP, a.Config.Server.Addr)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				return srv.Stop()
			}
		},
	}
}

func readSyllabus(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ext := parser.ExtractText(path, data)
	if err := ext.Err(); err != nil {
		return "", err
	}
	log.Info().Str("file", path).Int("pages", ext.Pages).Msg("syllabus extracted")
	return ext.Text, nil
}

func newIngestCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract and index a syllabus document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readSyllabus(file)
			if err != nil {
				return err
			}
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Service.Ingest(cmd.Context(), workflow.Session{SourceID: sessionID}, text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks for session %s\n", n, sessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Syllabus document (pdf, docx, pptx, xlsx, txt, md)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPlanCmd() *cobra.Command {
	var (
		file      string
		timetable string
		week      int
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Write a weekly study plan for a syllabus document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readSyllabus(file)
			if err != nil {
				return err
			}
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Service.WeeklyPlan(cmd.Context(), workflow.Session{SourceID: sessionID}, workflow.PlanRequest{
				Syllabus:  text,
				Timetable: timetable,
				Week:      week,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return helper.PrintJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan %d (week %d)\n\n%s\n", res.PlanID, res.Week, res.Plan)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Syllabus document")
	cmd.Flags().StringVar(&timetable, "timetable", "", "Free text description of the weekly timetable")
	cmd.Flags().IntVar(&week, "week", 1, "Week number to plan")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("timetable")
	return cmd
}

func newAskCmd() *cobra.Command {
	var (
		query          string
		conversationID int64
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a doubt against an indexed syllabus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Service.AskDoubt(cmd.Context(), workflow.Session{SourceID: sessionID, ConversationID: conversationID}, query)
			if err != nil {
				return err
			}
			if jsonOutput {
				return helper.PrintJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s\n\n%s\n", res.ConversationID, res.Title, res.Answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Question to answer")
	cmd.Flags().Int64Var(&conversationID, "conversation", 0, "Conversation to continue, 0 starts a new one")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func newNotesCmd() *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Generate revision notes for a topic or the whole syllabus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Service.GenerateNotes(cmd.Context(), workflow.Session{SourceID: sessionID}, topic)
			if err != nil {
				return err
			}
			if jsonOutput {
				return helper.PrintJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Notes)
			return nil
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "Topic to focus on, empty for the whole syllabus")
	return cmd
}

var errNotChromem = errors.New("export and import need the chromem vector store")

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every syllabus index to a single file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Chromem == nil {
				return errNotChromem
			}
			if err := a.Chromem.Export(cmd.Context(), out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d sources to %s\n", len(a.Chromem.Sources()), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "./chromemdb.gob", "Destination file")
	return cmd
}

func newImportCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load syllabus indexes from an export file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Chromem == nil {
				return errNotChromem
			}
			if err := a.Chromem.Import(cmd.Context(), in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d sources from %s\n", len(a.Chromem.Sources()), in)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "./chromemdb.gob", "Source file")
	return cmd
}

var errResetNotConfirmed = errors.New("reset deletes every conversation, plan and note; pass --yes to confirm")

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all conversations, plans and notes",
		Long:  "Drops and recreates the relational tables. Syllabus indexes are left untouched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errResetNotConfirmed
			}
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.DropAll(cmd.Context()); err != nil {
				return fmt.Errorf("dropping tables: %w", err)
			}
			if err := a.Store.Init(cmd.Context()); err != nil {
				return err
			}
			log.Warn().Str("database", a.Config.Database.Driver).Msg("database reset")
			fmt.Fprintln(cmd.OutOrStdout(), "database reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
