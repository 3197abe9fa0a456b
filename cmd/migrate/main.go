package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/riskianand4/internet-stock-tracker-84/internal/auth"
	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/database"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
	"github.com/riskianand4/internet-stock-tracker-84/internal/repository"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for the security monitor",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the last migration",
	RunE:  runDown,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE:  runStatus,
}

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new migration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create an admin account for the security review routes",
	RunE:  runSeedAdmin,
}

var (
	migrationsDir string

	seedEmail    string
	seedName     string
	seedPassword string
	seedRole     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "directory holding migration files")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(seedAdminCmd)

	seedAdminCmd.Flags().StringVar(&seedEmail, "email", "", "admin email address")
	seedAdminCmd.Flags().StringVar(&seedName, "name", "Administrator", "display name")
	seedAdminCmd.Flags().StringVar(&seedPassword, "password", "", "initial password (or SEED_ADMIN_PASSWORD)")
	seedAdminCmd.Flags().StringVar(&seedRole, "role", model.RoleAdmin, "admin or super_admin")
	_ = seedAdminCmd.MarkFlagRequired("email")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getMigrator() (*migrate.Migrate, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+migrationsDir,
		"postgres",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	log := logger.New("info", "text")
	log.Info().Msg("running migrations...")

	m, err := getMigrator()
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info().Msg("migrations completed successfully")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	log := logger.New("info", "text")
	log.Info().Msg("rolling back last migration...")

	m, err := getMigrator()
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	log.Info().Msg("rollback completed successfully")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	m, err := getMigrator()
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("No migrations have been applied")
	} else {
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Dirty: %v\n", dirty)
	}

	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := os.MkdirAll(migrationsDir, 0755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	// Get next version number
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	version := 1
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			version++
		}
	}

	// Create up and down migration files
	upFile := filepath.Join(migrationsDir, fmt.Sprintf("%06d_%s.up.sql", version, name))
	downFile := filepath.Join(migrationsDir, fmt.Sprintf("%06d_%s.down.sql", version, name))

	if err := os.WriteFile(upFile, []byte("-- Add migration SQL here\n"), 0644); err != nil {
		return fmt.Errorf("failed to create up migration: %w", err)
	}

	if err := os.WriteFile(downFile, []byte("-- Add rollback SQL here\n"), 0644); err != nil {
		return fmt.Errorf("failed to create down migration: %w", err)
	}

	fmt.Printf("Created migration files:\n  %s\n  %s\n", upFile, downFile)
	return nil
}

func runSeedAdmin(cmd *cobra.Command, args []string) error {
	log := logger.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if seedRole != model.RoleAdmin && seedRole != model.RoleSuperAdmin {
		return fmt.Errorf("role must be %s or %s", model.RoleAdmin, model.RoleSuperAdmin)
	}
	email, err := auth.NormalizeEmail(seedEmail)
	if err != nil {
		return err
	}
	password := seedPassword
	if password == "" {
		password = os.Getenv("SEED_ADMIN_PASSWORD")
	}
	if err := auth.ValidatePassword(password, cfg.Security.Password.MinLength); err != nil {
		return err
	}

	hash, err := auth.HashPassword(password, auth.ParamsFromConfig(cfg.Security.Password))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	now := time.Now()
	user := &model.User{
		ID:           "usr_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:26],
		Email:        email,
		Name:         seedName,
		PasswordHash: hash,
		Role:         seedRole,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repository.NewUserRepository(db).Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return fmt.Errorf("an account for %s already exists", email)
		}
		return err
	}

	log.Info().Str("user_id", user.ID).Str("email", email).Str("role", seedRole).Msg("admin account created")
	return nil
}
