package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/survey-wizard/backend/internal/config"
	"github.com/survey-wizard/backend/internal/db"
	"github.com/survey-wizard/backend/internal/models"
	"github.com/survey-wizard/backend/internal/services"
)

// surveyctl is the operator-side companion to the server: migrations and
// question management without going through HTTP.
func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	var configPath string

	root := &cobra.Command{
		Use:           "surveyctl",
		Short:         "Administer the survey backend database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")

	openStore := func() (*db.Store, error) {
		store, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open database %q: %w", cfg.DBPath, err)
		}
		if err := db.Migrate(store.DB()); err != nil {
			store.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return store, nil
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Println("database schema is up to date")
			return nil
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync-questions",
		Short: "Upsert the question config document into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.LoadQuestions(configPath)
			if err != nil {
				return fmt.Errorf("load question config %q: %w", configPath, err)
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			res, err := services.NewQuestionService(store).Sync(doc.ActiveQuestions())
			if err != nil {
				return err
			}
			fmt.Printf("%d added, %d updated, %d unchanged\n", res.Added, res.Updated, res.Skipped)
			return nil
		},
	}
	syncCmd.Flags().StringVar(&configPath, "config", cfg.QuestionsPath, "question config document (json or yaml)")

	listCmd := &cobra.Command{
		Use:   "list-questions",
		Short: "Print the stored questions as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			qs, err := services.NewQuestionService(store).List()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(qs)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add-question <id> <text>",
		Short: "Insert or update a single question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("question id must be an integer: %q", args[0])
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			res, err := services.NewQuestionService(store).Sync([]*models.Question{{ID: id, Text: args[1]}})
			if err != nil {
				return err
			}
			switch {
			case res.Added == 1:
				fmt.Printf("question %d added\n", id)
			case res.Updated == 1:
				fmt.Printf("question %d updated\n", id)
			default:
				fmt.Printf("question %d unchanged\n", id)
			}
			return nil
		},
	}

	answersCmd := &cobra.Command{
		Use:   "list-answers <question_id>",
		Short: "Print every recorded answer for a question as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("question id must be an integer: %q", args[0])
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			answers, err := services.NewSurveyService(store).AnswersByQuestion(id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(answers)
		},
	}

	root.AddCommand(migrateCmd, syncCmd, listCmd, addCmd, answersCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
