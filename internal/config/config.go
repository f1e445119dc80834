// Package config loads the server configuration from config.json, an optional
// .env file and VENATIC_ prefixed environment variables, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/venaticlol/venatic/internal/models"
)

const EnvPrefix = "VENATIC_"

func Default() models.ConfigFile {
	return models.ConfigFile{
		Address:           "0.0.0.0",
		Port:              "3000",
		LogLevel:          "debug",
		PublicDir:         "./public",
		SnowflakeWorkerID: 0,
		SelfContained:     true,
		SqlitePath:        "./database.db",
		DbPort:            "3306",
		RedisAddress:      "localhost:6379",

		KeyAuthName:    "Venatic 1v1.lol Loader",
		KeyAuthOwnerID: "3Fgwv9rfYE",
		KeyAuthVersion: "1.0",
		KeyAuthURL:     "https://keyauth.win/api/1.3/",

		HwidResetEnabled: false,
		DownloadURLBase:  "https://files.catbox.moe/",
		DownloadFileID:   "qBnY4FjN",
		DownloadExt:      ".rar",
		DownloadFilename: "Venatic-Slotted-Triggerbot.rar",
	}
}

// Load reads path on top of Default. A missing file is not an error, the
// defaults and environment are used instead.
func Load(path string) (*models.ConfigFile, error) {
	cfg := Default()

	err := readConfigFile(path, &cfg)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	err = godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	err = env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.JwtSecret == "" {
		return nil, fmt.Errorf("JwtSecret must be set")
	}

	return &cfg, nil
}

func readConfigFile(path string, cfg *models.ConfigFile) error {
	configFile, err := os.Open(path)
	if err != nil {
		return err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return err
	}

	err = json.Unmarshal(bytes, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
