// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/groupkv/groupkv/internal/manifest"
	"github.com/groupkv/groupkv/record"
	"github.com/spf13/cobra"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "manifest introspection tools",
}

var manifestDumpCmd = &cobra.Command{
	Use:   "dump <manifest-file>",
	Short: "print the edits stored in a manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runManifestDump,
}

func init() {
	manifestCmd.AddCommand(manifestDumpCmd)
}

func runManifestDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r := record.NewReader(f, record.ReaderOptions{VerifyChecksums: true})
	for i := 0; ; i++ {
		rec, err := r.ReadRecord()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		var ve manifest.VersionEdit
		if err := ve.Decode(bytes.NewReader(rec)); err != nil {
			return fmt.Errorf("edit %d: %w", i, err)
		}
		fmt.Printf("edit %d\n", i)
		if ve.ComparerName != "" {
			fmt.Printf("  comparer:       %s\n", ve.ComparerName)
		}
		fmt.Printf("  log-number:     %d\n", ve.LogNum)
		fmt.Printf("  next-file-num:  %d\n", ve.NextFileNum)
		fmt.Printf("  last-seq-num:   %d\n", ve.LastSeqNum)
		for df := range ve.DeletedFiles {
			fmt.Printf("  deleted:        L%d %s\n", df.Level, df.FileNum)
		}
		for _, nf := range ve.NewFiles {
			fmt.Printf("  added:          L%d %s %d bytes [%s-%s]\n",
				nf.Level, nf.Meta.FileNum, nf.Meta.Size, nf.Meta.Smallest, nf.Meta.Largest)
		}
	}
}
