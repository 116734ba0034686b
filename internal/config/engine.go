// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Main holds the [main] section of config.conf, spec.§6.
type Main struct {
	DB    string
	Views string
	Graph string
	Logs  string
}

// Warehouse holds the [warehouse] section.
type Warehouse struct {
	Host     string
	Port     int
	DB       string
	User     string
	Password string
}

// Store holds the [store] (object store) section.
type Store struct {
	Bucket   string
	Folder   string
	Key      string
	Secret   string
	Endpoint string
}

// Notifier holds the [notifier] section.
type Notifier struct {
	URL      string
	Channels map[string]string // class -> channel
}

// Engine is the fully loaded, validated top-level configuration.
type Engine struct {
	Main      Main
	Warehouse Warehouse
	Store     Store
	Notifier  Notifier
}

// Bind registers the --config flag naming the config.conf path, the way
// internal/source/server/config.go binds flags onto a pflag.FlagSet.
func Bind(flags *pflag.FlagSet) *string {
	return flags.String("config", "./config.conf", "path to config.conf")
}

// Load reads config.conf (INI format) via viper, applying the
// defaults from spec.§6, and returns the validated Engine config.
func Load(path string) (*Engine, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	v.SetDefault("main.db", "./duro.db")
	v.SetDefault("main.views", "./views")
	v.SetDefault("main.graph", "dependencies.dot")
	v.SetDefault("main.logs", "./logs")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "reading config.conf")
	}

	cfg := &Engine{
		Main: Main{
			DB:    v.GetString("main.db"),
			Views: v.GetString("main.views"),
			Graph: v.GetString("main.graph"),
			Logs:  v.GetString("main.logs"),
		},
		Warehouse: Warehouse{
			Host:     v.GetString("warehouse.host"),
			Port:     v.GetInt("warehouse.port"),
			DB:       v.GetString("warehouse.db"),
			User:     v.GetString("warehouse.user"),
			Password: v.GetString("warehouse.password"),
		},
		Store: Store{
			Bucket:   v.GetString("store.bucket"),
			Folder:   v.GetString("store.folder"),
			Key:      v.GetString("store.key"),
			Secret:   v.GetString("store.secret"),
			Endpoint: v.GetString("store.endpoint"),
		},
		Notifier: Notifier{
			URL:      v.GetString("notifier.url"),
			Channels: v.GetStringMapString("notifier.channels"),
		},
	}

	if err := cfg.Preflight(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Preflight validates required fields, mirroring the
// Config.Preflight() pattern from internal/source/server/config.go.
func (e *Engine) Preflight() error {
	if e.Main.Views == "" {
		return errors.New("main.views unset")
	}
	if e.Main.DB == "" {
		return errors.New("main.db unset")
	}
	if e.Warehouse.Host == "" {
		return errors.New("warehouse.host unset")
	}
	return nil
}
