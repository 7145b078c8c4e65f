package testutil

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kendall-kelly/repairdesk-api/config"
	"github.com/kendall-kelly/repairdesk-api/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TestJWTSecret signs every token issued in tests
const TestJWTSecret = "test-secret"

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// NewTestDB opens a private in-memory sqlite database with every table migrated.
// The database is closed when the test ends.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// a named shared-cache database keeps all connections on the same data
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", sanitize(t.Name()), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := config.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// TestConfig returns a configuration suitable for tests
func TestConfig() *config.Config {
	return &config.Config{
		DatabaseURL: "sqlite://:memory:",
		Port:        "8080",
		GoEnv:       "test",
		JWTSecret:   TestJWTSecret,
		JWTIssuer:   "repairdesk-test",
		JWTAudience: "repairdesk",
		SessionTTL:  time.Hour,
		AWSRegion:   "us-east-1",
		UploadDir:   os.TempDir(),
		LogLevel:    "error",
	}
}

// QuietLogs silences application logging for the duration of the test binary
func QuietLogs() {
	logger.Initialize("error", "text")
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
