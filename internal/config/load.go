package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kaedehara/minutes-pipeline/internal/errs"
)

// Load reads the YAML config file, applies .env and environment-variable
// overrides, and validates the result.
//
// Precedence (highest wins):
//  1. Environment variables (SECTION_FIELD, e.g. WHISPER_LANGUAGE)
//  2. YAML file values
//  3. Defaults
func Load(path string) (*Config, error) {
	// .env never overrides variables already present in the environment.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config("read config file %s", path).WithCause(err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Config("parse config file %s", path).WithCause(err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Secrets with non-standard env-var names.
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		cfg.Discord.Token = token
	} else if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Generator.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig seeds the fields whose zero value is itself a valid setting.
// Unmarshalling only touches keys present in the file, so max_retries: 0 or
// temperature: 0.0 written explicitly is kept rather than bumped back up.
func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Craig.MaxRetries = 2
	cfg.Merger.MinSegmentChars = 1
	cfg.Merger.GapMergeThresholdSec = 1.0
	cfg.Generator.Temperature = 0.3
	cfg.Generator.MaxRetries = 2
	return cfg
}

// applyEnvOverrides walks the config sections and overrides any field whose
// SECTION_FIELD environment variable is set. Field names come from yaml tags.
func applyEnvOverrides(cfg *Config) error {
	root := reflect.ValueOf(cfg).Elem()
	rootType := root.Type()

	for i := 0; i < root.NumField(); i++ {
		section := root.Field(i)
		sectionName := yamlTag(rootType.Field(i))
		if sectionName == "" || section.Kind() != reflect.Struct {
			continue
		}

		sectionType := section.Type()
		for j := 0; j < section.NumField(); j++ {
			fieldName := yamlTag(sectionType.Field(j))
			if fieldName == "" {
				continue
			}

			envKey := strings.ToUpper(sectionName + "_" + fieldName)
			envVal, ok := os.LookupEnv(envKey)
			if !ok {
				continue
			}

			if err := setField(section.Field(j), envVal); err != nil {
				return errs.Config("invalid value for %s: %q", envKey, envVal).WithCause(err)
			}
		}
	}
	return nil
}

func yamlTag(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "-" {
		return ""
	}
	return tag
}

func setField(v reflect.Value, raw string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Int, reflect.Int64:
		// Base 0 accepts 0x-prefixed values (embed colors).
		n, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Bool:
		switch strings.ToLower(raw) {
		case "1", "true", "yes":
			v.SetBool(true)
		default:
			v.SetBool(false)
		}
	}
	return nil
}
