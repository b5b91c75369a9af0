/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	hfs "github.com/blacktop/go-hfs"
	"github.com/blacktop/go-hfs/pkg/disk"
	"github.com/blacktop/go-hfs/pkg/extract"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// Verbose boolean flag for verbose logging
	Verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hfs",
	Short: "HFS+ read-only catalog browser and extractor",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if Verbose || viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err.Error())
	}
}

func init() {
	log.SetHandler(clihander.Default)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/hfs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().Int("cache", 0, "Device read cache size in 64KiB chunks (0 disables)")
	rootCmd.PersistentFlags().String("tmp", "", "Directory used to inflate .xz/.bz2 images")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("disk.cache-blocks", rootCmd.PersistentFlags().Lookup("cache"))
	viper.BindPFlag("disk.temp-dir", rootCmd.PersistentFlags().Lookup("tmp"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("extract.digest", extract.DefaultDigest)
	viper.SetDefault("extract.workers", runtime.NumCPU())
	viper.SetDefault("extract.exclude", []string{})
	viper.SetDefault("disk.cache-block-size", disk.DefaultCacheBlockSize)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "hfs"))
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("hfs")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
		log.WithError(err).Warn("failed to read config file")
	}
}

func loadConfig() (*hfs.Config, error) {
	var conf hfs.Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &conf, nil
}

func openImage(path string) (*hfs.HFS, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	h, err := hfs.Open(filepath.Clean(path), &conf.Disk)
	if err != nil {
		return nil, fmt.Errorf("failed to open HFS+ image: %w", err)
	}
	return h, nil
}
