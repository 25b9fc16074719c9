// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package main

import (
	"bufio"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authkv/authkv/internal/auth"
)

// hashConfig holds configuration for the hash command.
type hashConfig struct {
	verify string
}

// NewHashCmd creates the hash subcommand.
func NewHashCmd() *cobra.Command {
	cfg := &hashConfig{}

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash or verify a password read from stdin",
		Long: `Read one line from stdin and print its argon2id encoding using the
configured hasher parameters. With --verify, check the line against an
existing encoding instead and exit with status 1 on mismatch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runHash(cmd, appCfg.Hasher, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.verify, "verify", "", "encoding to check the password against")

	return cmd
}

func runHash(cmd *cobra.Command, params auth.Params, cfg *hashConfig) error {
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	hasher, err := auth.NewArgon2idHasher(params)
	if err != nil {
		return err
	}

	if cfg.verify != "" {
		if _, err := auth.ParseEncoding(cfg.verify); err != nil {
			return err
		}
		if !hasher.Verify(cfg.verify, password) {
			return oops.Code("PASSWORD_MISMATCH").Errorf("password does not match")
		}
		cmd.Println("ok")
		return nil
	}

	encoded, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	cmd.Println(encoded)
	return nil
}

// readPassword returns the first stdin line without its line terminator.
func readPassword(cmd *cobra.Command) ([]byte, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return nil, oops.Code("PASSWORD_MISSING").Wrapf(err, "read password from stdin")
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
