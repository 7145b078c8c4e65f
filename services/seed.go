package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/models"
	"gopkg.in/yaml.v3"
)

// SeedFile lists accounts to create at start-up
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

type SeedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Username string `yaml:"username"`
}

// LoadSeedFile parses a YAML seed file
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &file, nil
}

// Seed creates every listed account that does not exist yet and returns how many were created
func (s *UserAdminService) Seed(ctx context.Context, file *SeedFile) (int, error) {
	created := 0
	for _, u := range file.Users {
		_, err := s.CreateAccountWithRole(ctx, CreateUserInput{
			Email:    u.Email,
			Password: u.Password,
			Role:     models.Role(u.Role),
			Username: u.Username,
		})
		if errors.Is(err, models.ErrDuplicateEmail) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		created++
	}

	logger.Info("Seed users applied", map[string]interface{}{
		"listed":  len(file.Users),
		"created": created,
	})
	return created, nil
}
