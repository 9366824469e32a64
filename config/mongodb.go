package config

import "fmt"

var DefaultMongoDBConfig = MongoDBConfig{
	URI:               "mongodb://localhost",
	DB:                "gvault",
	JournalCollection: "journal",
}

type MongoDBConfig struct {
	URI               string `yaml:"uri"`
	DB                string `yaml:"db"`
	JournalCollection string `yaml:"journal_collection"`
}

func (cfg MongoDBConfig) Validate() error {
	if cfg.URI == "" {
		return fmt.Errorf("'uri' is required")
	}
	if cfg.DB == "" {
		return fmt.Errorf("'db' is required")
	}
	if cfg.JournalCollection == "" {
		return fmt.Errorf("'journal_collection' is required")
	}
	return nil
}
