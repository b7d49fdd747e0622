// Copyright 2023 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
package conf

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mendersoftware/lmdbenv/lmdb"
)

const (
	DefaultMapSize    = 1 << 30
	DefaultMaxReaders = 126
	DefaultMaxDBs     = 16
	DefaultFileMode   = 0600
)

// LMDBConfig describes how an environment is opened. All fields map
// one-to-one onto environment configuration and open flags.
type LMDBConfig struct {
	// Path to the database directory (or file, with NoSubdir).
	Path string `json:",omitempty"`
	// Size of the memory map in bytes.
	MapSize int64 `json:",omitempty"`
	// Maximum number of reader slots.
	MaxReaders int `json:",omitempty"`
	// Maximum number of named databases.
	MaxDBs int `json:",omitempty"`
	// File mode for created database files, octal.
	FileMode uint32 `json:",omitempty"`

	// Open flags.
	NoSubdir    bool `json:",omitempty"`
	ReadOnly    bool `json:",omitempty"`
	NoSync      bool `json:",omitempty"`
	NoMetaSync  bool `json:",omitempty"`
	WriteMap    bool `json:",omitempty"`
	MapAsync    bool `json:",omitempty"`
	NoTLS       bool `json:",omitempty"`
	NoLock      bool `json:",omitempty"`
	NoReadahead bool `json:",omitempty"`
	NoMemInit   bool `json:",omitempty"`
}

func NewLMDBConfig() *LMDBConfig {
	return &LMDBConfig{
		MapSize:    DefaultMapSize,
		MaxReaders: DefaultMaxReaders,
		MaxDBs:     DefaultMaxDBs,
		FileMode:   DefaultFileMode,
	}
}

func (c *LMDBConfig) CheckConfigDefaults() {
	if c.MapSize <= 0 {
		c.MapSize = DefaultMapSize
	}
	if c.MaxReaders <= 0 {
		c.MaxReaders = DefaultMaxReaders
	}
	if c.MaxDBs <= 0 {
		c.MaxDBs = DefaultMaxDBs
	}
	if c.FileMode == 0 {
		c.FileMode = DefaultFileMode
	}
}

// EnvFlags translates the boolean flag fields into the native open mask.
func (c *LMDBConfig) EnvFlags() lmdb.EnvFlags {
	var flags lmdb.EnvFlags
	for _, f := range []struct {
		set  bool
		flag lmdb.EnvFlags
	}{
		{c.NoSubdir, lmdb.NoSubdir},
		{c.ReadOnly, lmdb.Readonly},
		{c.NoSync, lmdb.NoSync},
		{c.NoMetaSync, lmdb.NoMetaSync},
		{c.WriteMap, lmdb.WriteMap},
		{c.MapAsync, lmdb.MapAsync},
		{c.NoTLS, lmdb.NoTLS},
		{c.NoLock, lmdb.NoLock},
		{c.NoReadahead, lmdb.NoReadahead},
		{c.NoMemInit, lmdb.NoMemInit},
	} {
		if f.set {
			flags = flags.With(f.flag)
		}
	}
	return flags
}

// OpenEnv applies the configuration and opens the environment it
// describes.
func (c *LMDBConfig) OpenEnv() (*lmdb.Env, error) {
	if c.Path == "" {
		return nil, errors.New("no database path configured")
	}
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create environment")
	}
	if err := env.SetMapSize(c.MapSize); err != nil {
		return nil, errors.Wrap(err, "failed to set map size")
	}
	if err := env.SetMaxReaders(c.MaxReaders); err != nil {
		return nil, errors.Wrap(err, "failed to set max readers")
	}
	if err := env.SetMaxDBs(c.MaxDBs); err != nil {
		return nil, errors.Wrap(err, "failed to set max databases")
	}
	if err := env.Open(c.Path, c.EnvFlags(), os.FileMode(c.FileMode)); err != nil {
		return nil, errors.Wrapf(err, "failed to open environment at %s", c.Path)
	}
	return env, nil
}

// LoadConfig parses the configuration json-files and loads the values into
// a fresh LMDBConfig. Load the fallback configuration first, then the main
// configuration; because the main configuration is loaded last, its option
// values override those from the fallback file, for options present in
// both files. It is OK if either file does not exist, or both.
func LoadConfig(mainConfigFile string, fallbackConfigFile string) (*LMDBConfig, error) {
	var filesLoadedCount int
	config := NewLMDBConfig()

	if loadErr := loadConfigFile(fallbackConfigFile, config, &filesLoadedCount); loadErr != nil {
		return nil, loadErr
	}

	if loadErr := loadConfigFile(mainConfigFile, config, &filesLoadedCount); loadErr != nil {
		return nil, loadErr
	}

	config.CheckConfigDefaults()

	if filesLoadedCount == 0 {
		log.Info("No configuration files present. Using defaults")
		return config, nil
	}

	log.Debugf("Loaded %d configuration file(s), merged configuration = %#v",
		filesLoadedCount, config)

	return config, nil
}

func loadConfigFile(configFile string, config *LMDBConfig, filesLoadedCount *int) error {
	// Do not treat a single config file not existing as an error here.
	// It is up to the caller to fail when both config files don't exist.
	if configFile == "" {
		return nil
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Debug("Configuration file does not exist: ", configFile)
		return nil
	}

	if err := readConfigFile(config, configFile); err != nil {
		log.Errorf("Error loading configuration from file: %s (%s)",
			configFile, err.Error())
		return err
	}

	(*filesLoadedCount)++
	log.Info("Loaded configuration file: ", configFile)
	return nil
}

func readConfigFile(config interface{}, fileName string) error {
	log.Debug("Reading configuration from file " + fileName)
	conf, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(conf, &config); err != nil {
		switch err.(type) {
		case *json.SyntaxError:
			return errors.New("Error parsing configuration file: " + err.Error())
		}
		return errors.New("Error parsing config file: " + err.Error())
	}

	return nil
}

func SaveConfigFile(config *LMDBConfig, filename string) error {
	configJson, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return errors.Wrap(err, "Error encoding configuration to JSON")
	}
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "Error opening configuration file")
	}
	defer f.Close()

	if _, err = f.Write(configJson); err != nil {
		return errors.Wrap(err, "Error writing to configuration file")
	}
	return nil
}
