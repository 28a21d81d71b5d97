// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "groupkv [command] (flags)",
	Short: "groupkv maintenance tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		repairCmd,
		manifestCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
