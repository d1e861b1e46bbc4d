package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "./", cfg.DB.DBPath)
	assert.Equal(t, "leasedb.db", cfg.DB.DBFile)
	assert.Equal(t, "8080", cfg.HTTP.Port)
}

func TestLoadConfigWithEnvironment(t *testing.T) {
	originalPort := os.Getenv("HTTP_PORT")
	originalDBPath := os.Getenv("DB_PATH")

	defer func() {
		if originalPort != "" {
			os.Setenv("HTTP_PORT", originalPort)
		} else {
			os.Unsetenv("HTTP_PORT")
		}
		if originalDBPath != "" {
			os.Setenv("DB_PATH", originalDBPath)
		} else {
			os.Unsetenv("DB_PATH")
		}
	}()

	os.Setenv("HTTP_PORT", "9090")
	os.Setenv("DB_PATH", "/tmp/test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, "/tmp/test", cfg.DB.DBPath)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				DB:   DBConfig{DBPath: "./", DBFile: "test.db"},
				HTTP: HTTPConfig{Port: "8080"},
			},
			wantErr: false,
		},
		{
			name: "missing DB path",
			config: &Config{
				DB:   DBConfig{DBPath: "", DBFile: "test.db"},
				HTTP: HTTPConfig{Port: "8080"},
			},
			wantErr: true,
		},
		{
			name: "missing DB file",
			config: &Config{
				DB:   DBConfig{DBPath: "./", DBFile: ""},
				HTTP: HTTPConfig{Port: "8080"},
			},
			wantErr: true,
		},
		{
			name: "invalid port",
			config: &Config{
				DB:   DBConfig{DBPath: "./", DBFile: "test.db"},
				HTTP: HTTPConfig{Port: "invalid"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetDatabasePath(t *testing.T) {
	cfg := &Config{
		DB: DBConfig{DBPath: "/tmp/test", DBFile: "leasedb.db"},
	}

	expected := filepath.Join("/tmp/test", "leasedb.db")
	assert.Equal(t, expected, cfg.GetDatabasePath())
}

func TestValidateDirectories(t *testing.T) {
	tempDir := t.TempDir()
	dbDir := filepath.Join(tempDir, "db")

	cfg := &Config{DB: DBConfig{DBPath: dbDir}}

	require.NoError(t, cfg.validateDirectories())
	assert.DirExists(t, dbDir)
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_VAR", "test_value")
	defer os.Unsetenv("TEST_VAR")

	result := getEnv("TEST_VAR", "default")
	assert.Equal(t, "test_value", result)

	result = getEnv("NON_EXISTING_VAR", "default")
	assert.Equal(t, "default", result)

	os.Setenv("EMPTY_VAR", "")
	defer os.Unsetenv("EMPTY_VAR")

	result = getEnv("EMPTY_VAR", "default")
	assert.Equal(t, "", result)
}
