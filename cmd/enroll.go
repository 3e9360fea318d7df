package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/markrhq/markr/internal/config"
	"github.com/markrhq/markr/internal/embedding"
	"github.com/markrhq/markr/internal/store"
	"github.com/markrhq/markr/internal/store/postgres"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <directory>",
	Short: "Batch-enroll student reference faces from a photo directory",
	Long: `Enroll reference faces for students from a directory of portrait photos.
Each file must be named after the student number it belongs to, e.g.
STU001.jpg. Photos with zero or multiple detected faces are skipped and
reported at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

// enrollOne detects the face in one portrait and stores its embedding.
func enrollOne(ctx context.Context, gateway *embedding.Gateway, roster store.RosterStore, path string) error {
	number := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	student, err := roster.StudentByNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("student %s: %w", number, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	faces, err := gateway.Detect(ctx, data)
	if err != nil {
		return fmt.Errorf("detecting faces in %s: %w", path, err)
	}
	if len(faces) != 1 {
		return fmt.Errorf("%s: expected exactly one face, found %d", path, len(faces))
	}

	if err := roster.UpdateStudentEmbedding(ctx, student.ID, faces[0].Embedding); err != nil {
		return fmt.Errorf("storing embedding for %s: %w", number, err)
	}
	return nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, stores, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	var photos []string
	for _, ext := range []string{"*.jpg", "*.jpeg", "*.png", "*.webp"} {
		matches, err := filepath.Glob(filepath.Join(args[0], ext))
		if err != nil {
			return fmt.Errorf("listing photos: %w", err)
		}
		photos = append(photos, matches...)
	}
	if len(photos) == 0 {
		return fmt.Errorf("no photos found in %s", args[0])
	}

	gateway := embedding.NewGateway(cfg.Embedding.URL, cfg.Embedding.Dim)

	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Enrolling faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var failures []string
	for _, path := range photos {
		if err := enrollOne(ctx, gateway, stores.Roster, path); err != nil {
			failures = append(failures, err.Error())
		}
		bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Enrolled %d of %d photos\n", len(photos)-len(failures), len(photos))
	for _, f := range failures {
		fmt.Printf("  skipped: %s\n", f)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d photos could not be enrolled", len(failures))
	}
	return nil
}
