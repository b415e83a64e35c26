// Package commands provides CLI command handlers for the attendance server
package commands

import (
	"flag"
	"fmt"
	"os"

	"shiftclock/internal/container"
	"shiftclock/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunSeed creates a demo organization with a shift, a work location and a
// couple of users so a fresh deployment can be exercised immediately.
// Seeding is idempotent: existing rows matched by name are reused.
func RunSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	orgName := fs.String("org", "Acme Corporation", "organization name")
	timezone := fs.String("tz", "UTC", "organization IANA timezone")
	fs.Usage = func() {
		fmt.Println("Usage: shiftclock seed [flags]")
		fmt.Println()
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	c, err := container.BuildContainer()
	if err != nil {
		logrus.Fatalf("Failed to build container: %v", err)
	}

	if err := c.Invoke(func(db *gorm.DB) error {
		return seed(db, *orgName, *timezone)
	}); err != nil {
		logrus.Fatalf("Seed failed: %v", err)
	}
	logrus.Info("Seed completed successfully")
}

func seed(db *gorm.DB, orgName, timezone string) error {
	if err := db.AutoMigrate(
		&models.SystemSetting{},
		&models.Organization{},
		&models.Shift{},
		&models.WorkLocation{},
		&models.User{},
		&models.AttendanceSession{},
		&models.DailyAttendance{},
		&models.Holiday{},
		&models.LeaveRequest{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		org := models.Organization{Name: orgName, Timezone: timezone}
		if err := tx.Where("name = ?", orgName).FirstOrCreate(&org).Error; err != nil {
			return fmt.Errorf("organization: %w", err)
		}

		shift := models.Shift{
			OrgID:        org.ID,
			Name:         "General Shift",
			StartClock:   "09:00",
			EndClock:     "18:00",
			GraceMinutes: 10,
		}
		if err := tx.Where("org_id = ? AND name = ?", org.ID, shift.Name).FirstOrCreate(&shift).Error; err != nil {
			return fmt.Errorf("shift: %w", err)
		}

		location := models.WorkLocation{
			OrgID:        org.ID,
			Name:         "Head Office",
			Latitude:     14.5995,
			Longitude:    120.9842,
			RadiusMeters: 100,
		}
		if err := tx.Where("org_id = ? AND name = ?", org.ID, location.Name).FirstOrCreate(&location).Error; err != nil {
			return fmt.Errorf("work location: %w", err)
		}

		demoUsers := []models.User{
			{OrgID: org.ID, Name: "Demo User", Email: "demo.user@shiftclock.local", ShiftID: &shift.ID, Active: true},
			{OrgID: org.ID, Name: "Demo Manager", Email: "demo.manager@shiftclock.local", ShiftID: &shift.ID, Active: true},
		}
		for i := range demoUsers {
			user := &demoUsers[i]
			if err := tx.Where("org_id = ? AND email = ?", org.ID, user.Email).FirstOrCreate(user).Error; err != nil {
				return fmt.Errorf("user %q: %w", user.Name, err)
			}
			if err := tx.Model(user).Association("WorkLocations").Append(&location); err != nil {
				return fmt.Errorf("user %q locations: %w", user.Name, err)
			}
		}
		return nil
	})
}
