// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"fmt"

	"github.com/groupkv/groupkv"
	"github.com/groupkv/groupkv/bloom"
	"github.com/spf13/cobra"
)

var repairLGList []uint

var repairCmd = &cobra.Command{
	Use:   "repair <dir>",
	Short: "rebuild the descriptors of a database from its surviving files",
	Long: `
Rebuild a consistent descriptor for every locality group of the database in
<dir> from the WAL and sstable files that survive there. Files that cannot be
recovered are moved aside into lost/ subdirectories. Some data may be lost.

The locality group list must match the one the database was created with.
`,
	Args: cobra.ExactArgs(1),
	RunE: runRepair,
}

func init() {
	repairCmd.Flags().UintSliceVar(
		&repairLGList, "lg", []uint{0}, "locality group ids the database was created with")
}

func runRepair(cmd *cobra.Command, args []string) error {
	lgs := make([]groupkv.LGID, 0, len(repairLGList))
	for _, lg := range repairLGList {
		lgs = append(lgs, groupkv.LGID(lg))
	}
	opts := &groupkv.Options{
		FilterPolicy: bloom.FilterPolicy(10),
		LGList:       lgs,
	}
	if err := groupkv.Repair(args[0], opts); err != nil {
		return fmt.Errorf("repair %s: %w", args[0], err)
	}
	fmt.Printf("repaired %s\n", args[0])
	return nil
}
