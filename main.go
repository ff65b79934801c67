package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quickpost/quickpost/config"
	"github.com/quickpost/quickpost/mailer"
	"github.com/quickpost/quickpost/models"
	"github.com/quickpost/quickpost/routes"
	"github.com/quickpost/quickpost/services"
	"github.com/quickpost/quickpost/utils"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "quickpost",
		Short: "Quickpost social blogging service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	rootCmd.AddCommand(serveCmd(), migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := utils.InitLogger(cfg); err != nil {
				return err
			}
			config.InitDatabase(&models.User{}, &models.Post{}, &models.Favorite{}, &models.Like{})
			utils.Sugar.Info("migrations applied")
			return nil
		},
	}
}

func serve() error {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		return err
	}

	db := config.InitDatabase(&models.User{}, &models.Post{}, &models.Favorite{}, &models.Like{})
	utils.InitRedis(cfg.RedisHost, cfg.RedisPort, cfg.RedisDB, cfg.RedisPassword)

	dispatcher := mailer.New(cfg)
	notifier := services.NewNotifier(db, dispatcher, cfg.SiteName, cfg.SiteBaseURL)

	r := routes.SetupRouter(db, notifier)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Errorf("server stopped with error: %v", err)
		return err
	}
	return nil
}
