package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// catalogFile is the on-disk catalog shape.
type catalogFile struct {
	Databases []catalogEntry `yaml:"databases"`
}

// catalogEntry is one catalog database. The password never appears in the
// document; password_env names the environment variable that carries it.
type catalogEntry struct {
	Name               string `yaml:"name"`
	Engine             string `yaml:"engine"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Database           string `yaml:"database"`
	User               string `yaml:"user"`
	PasswordEnv        string `yaml:"password_env"`
	SSLMode            string `yaml:"ssl_mode"`
	Description        string `yaml:"description"`
	Staging            string `yaml:"staging"`
	CostCeilingSeconds int    `yaml:"cost_ceiling_seconds"`
}

// LoadCatalog parses the database catalog and resolves credentials from the
// environment. The catalog is validated eagerly: an unknown engine kind or a
// missing credential fails the load, not the first comparison that needs it.
func LoadCatalog(path string) ([]models.LogicalDatabase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(file.Databases) == 0 {
		return nil, fmt.Errorf("catalog %s defines no databases", path)
	}

	seen := make(map[string]bool, len(file.Databases))
	databases := make([]models.LogicalDatabase, 0, len(file.Databases))
	for i, entry := range file.Databases {
		db, err := entry.toDatabase()
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d (%s): %w", i, entry.Name, err)
		}
		if seen[db.Name] {
			return nil, fmt.Errorf("catalog entry %d: duplicate database name %q", i, db.Name)
		}
		seen[db.Name] = true
		databases = append(databases, db)
	}
	return databases, nil
}

func (e catalogEntry) toDatabase() (models.LogicalDatabase, error) {
	if e.Name == "" {
		return models.LogicalDatabase{}, fmt.Errorf("name is required")
	}
	engineKind, err := models.ParseEngineKind(e.Engine)
	if err != nil {
		return models.LogicalDatabase{}, err
	}
	if e.Host == "" {
		return models.LogicalDatabase{}, fmt.Errorf("host is required")
	}
	if e.Database == "" {
		return models.LogicalDatabase{}, fmt.Errorf("database is required")
	}
	if e.User == "" {
		return models.LogicalDatabase{}, fmt.Errorf("user is required")
	}

	staging, err := parseStaging(e.Staging)
	if err != nil {
		return models.LogicalDatabase{}, err
	}

	var password string
	if e.PasswordEnv != "" {
		password = os.Getenv(e.PasswordEnv)
		if password == "" {
			return models.LogicalDatabase{}, fmt.Errorf(
				"credential environment variable %s is not set", e.PasswordEnv)
		}
	}

	return models.LogicalDatabase{
		Name:               e.Name,
		Engine:             engineKind,
		Host:               e.Host,
		Port:               e.Port,
		Database:           e.Database,
		User:               e.User,
		Password:           password,
		SSLMode:            e.SSLMode,
		Description:        e.Description,
		Staging:            staging,
		CostCeilingSeconds: e.CostCeilingSeconds,
	}, nil
}

func parseStaging(value string) (models.StagingMode, error) {
	switch models.StagingMode(value) {
	case "", models.StagingTemp:
		return models.StagingTemp, nil
	case models.StagingInline:
		return models.StagingInline, nil
	default:
		return "", fmt.Errorf("unsupported staging mode %q (supported: temp, inline)", value)
	}
}
