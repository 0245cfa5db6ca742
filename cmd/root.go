/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds the merged flag, environment and config file settings
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fluxreg",
	Short: "Conservative flux registers for block structured AMR",
	Long: `
Runs two level, subcycled advection problems that keep the composite solution
conservative by refluxing the coarse level at the coarse/fine interface,
optionally around an embedded boundary.

fluxreg reflux -I input.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setConfig(); err != nil {
			return err
		}
		return setLogLevel()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name:       "config",
			usage:      "config file, $HOME/.fluxreg.yaml when present",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{rootCmd.PersistentFlags()},
		},
		{
			name:       "log-level",
			usage:      "one of panic, fatal, error, warn, info, debug, trace",
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{rootCmd.PersistentFlags()},
		},
		{
			name:       "inputConditionsFile",
			usage:      "YAML file for the problem: grid, fine boxes, velocity, obstacle",
			shorthand:  "I",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{RefluxCmd.Flags()},
		},
		{
			name:       "ranks",
			usage:      "number of in-process ranks, overrides NumRanks when positive",
			shorthand:  "n",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{RefluxCmd.Flags()},
		},
		{
			name:       "executor",
			usage:      "serial, tiled or batched, overrides Executor when set",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{RefluxCmd.Flags()},
		},
		{
			name:       "noReflux",
			usage:      "skip the coarse correction, the composite mass drifts",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{RefluxCmd.Flags()},
		},
		{
			name:       "profile",
			usage:      "write a cpu or mem profile to the working directory",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{RefluxCmd.Flags()},
		},
		{
			name:       "perf",
			usage:      "count the CPU instructions spent in the run (linux)",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{RefluxCmd.Flags()},
		},
	}

	Cfg = viper.New()
	Cfg.SetEnvPrefix("FLUXREG")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 {
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
	rootCmd.AddCommand(RefluxCmd)
}

// setConfig reads the config file named by --config, or the default one in
// the home directory if it exists
func setConfig() error {
	cfgpath := Cfg.GetString("config")
	if cfgpath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil
		}
		cfgpath = filepath.Join(home, ".fluxreg.yaml")
		if _, err = os.Stat(cfgpath); err != nil {
			return nil
		}
	}
	Cfg.SetConfigFile(cfgpath)
	if err := Cfg.ReadInConfig(); err != nil {
		return fmt.Errorf("fluxreg: problem reading configuration file: %w", err)
	}
	return nil
}

func setLogLevel() error {
	lvl, err := logrus.ParseLevel(Cfg.GetString("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}
