package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/markrhq/markr/internal/config"
	"github.com/markrhq/markr/internal/store"
	"github.com/markrhq/markr/internal/store/postgres"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a demo district, school, and roster",
	Long: `Seed the database with demo data for local development: one district,
one school, a principal, a teacher assigned to class 5A, a district
officer, and a small student roster. All demo accounts use the password
given by --password.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("password", "demo-password", "Password for the demo accounts")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, stores, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(mustGetString(cmd, "password")), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing demo password: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	district := &store.District{Name: "Riverside Unified", State: "CA"}
	if err := stores.Directory.CreateDistrict(ctx, district); err != nil {
		return fmt.Errorf("creating district: %w", err)
	}
	school := &store.School{
		Name:       "Lincoln Elementary",
		Address:    "74 Maple Street",
		DistrictID: district.ID,
		Active:     true,
	}
	if err := stores.Directory.CreateSchool(ctx, school); err != nil {
		return fmt.Errorf("creating school: %w", err)
	}

	users := []*store.User{
		{Email: "principal@demo.example", Name: "Dana Kim", Role: "principal", SchoolID: &school.ID},
		{Email: "teacher@demo.example", Name: "Priya Sharma", Role: "teacher", SchoolID: &school.ID},
		{Email: "district@demo.example", Name: "Sam Alvarez", Role: "district", DistrictID: &district.ID},
	}
	for _, u := range users {
		u.PasswordHash = string(hash)
		u.Active = true
		if err := stores.Directory.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("creating user %s: %w", u.Email, err)
		}
	}

	teacher := users[1]
	if err := stores.Directory.CreateAssignment(ctx, &store.TeacherAssignment{
		TeacherID: teacher.ID,
		ClassName: "5A",
		Subject:   "Homeroom",
		SchoolID:  school.ID,
	}); err != nil {
		return fmt.Errorf("assigning teacher: %w", err)
	}

	students := []store.Student{
		{Name: "Amara Diallo", StudentNumber: "STU001", GuardianName: "Fatou Diallo", GuardianPhone: "+15550001"},
		{Name: "Ben Okafor", StudentNumber: "STU002", GuardianName: "Ngozi Okafor", GuardianPhone: "+15550002"},
		{Name: "Chloe Nguyen", StudentNumber: "STU003", GuardianName: "Linh Nguyen", GuardianPhone: "+15550003"},
		{Name: "José Álvarez-Ruiz", StudentNumber: "STU004", GuardianName: "María Álvarez", GuardianPhone: "+15550004"},
		{Name: "Lena Fischer", StudentNumber: "STU005", GuardianName: "Jonas Fischer", GuardianPhone: "+15550005"},
	}
	for i := range students {
		students[i].ClassName = "5A"
		students[i].SchoolID = school.ID
		students[i].Active = true
		if err := stores.Roster.CreateStudent(ctx, &students[i]); err != nil {
			return fmt.Errorf("creating student %s: %w", students[i].StudentNumber, err)
		}
	}

	fmt.Printf("Seeded district %d, school %d, %d users, %d students\n",
		district.ID, school.ID, len(users), len(students))
	fmt.Println("Students have no reference faces yet; enroll photos with 'markr enroll'")
	return nil
}
