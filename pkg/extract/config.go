package extract

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// DefaultExcludes are HFS+ metadata entries that are never worth extracting
var DefaultExcludes = []string{
	"\x00\x00\x00\x00HFS+ Private Data",
	".HFS+ Private Directory Data\r",
	".Spotlight-V100",
	".journal_info_block",
	".journal",
	".fseventsd",
}

const DefaultDigest = "sha256"

// Config is the extractor configuration
type Config struct {
	Output string `mapstructure:"output"`
	// Exclude lists path components; a file is skipped when any component of its path equals one
	Exclude           []string `mapstructure:"exclude"`
	NoDefaultExcludes bool     `mapstructure:"no-default-excludes"`
	Digest            string   `mapstructure:"digest"`
	Workers           int      `mapstructure:"workers"`
	ResourceForks     bool     `mapstructure:"resource-forks"`
	PreserveTimes     bool     `mapstructure:"preserve-times"`
	// Prefix limits extraction to files below these slash separated paths
	Prefix   []string `mapstructure:"prefix"`
	Progress bool     `mapstructure:"progress"`
}

func (c *Config) setDefaults() {
	if c.Output == "" {
		c.Output = "."
	}
	if c.Digest == "" {
		c.Digest = DefaultDigest
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
}

func (c *Config) excludes() map[string]bool {
	ex := make(map[string]bool)
	if !c.NoDefaultExcludes {
		for _, e := range DefaultExcludes {
			ex[e] = true
		}
	}
	for _, e := range c.Exclude {
		ex[e] = true
	}
	return ex
}

func (c *Config) prefixes() [][]string {
	var out [][]string
	for _, p := range c.Prefix {
		parts := strings.FieldsFunc(p, func(r rune) bool {
			return r == '/' || r == filepath.Separator
		})
		if len(parts) > 0 {
			out = append(out, parts)
		}
	}
	return out
}

// NewHash returns a constructor for the named digest
func NewHash(name string) (func() hash.Hash, error) {
	switch strings.ToLower(name) {
	case "", "sha256":
		return sha256.New, nil
	case "sha1":
		return sha1.New, nil
	case "md5":
		return md5.New, nil
	case "sha512":
		return sha512.New, nil
	case "blake2b", "blake2b-256":
		return func() hash.Hash {
			h, _ := blake2b.New256(nil) // only fails for keys over 64 bytes
			return h
		}, nil
	default:
		return nil, fmt.Errorf("unsupported digest %q (supported: sha256, sha1, md5, sha512, blake2b)", name)
	}
}
