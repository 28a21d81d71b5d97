// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package groupkv

import (
	"slices"

	"github.com/groupkv/groupkv/cache"
	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/vfs"
)

// Options holds the optional parameters for a database, including those
// consumed by Repair. Any nil field is replaced by a reasonable default.
type Options struct {
	// FS provides the interface for persistent file storage.
	//
	// The default value uses the underlying operating system's file system.
	FS vfs.FS

	// Comparer defines a total ordering over the space of []byte keys. The
	// comparer's name is recorded in every descriptor and verified on open.
	//
	// The default value uses the same ordering as bytes.Compare.
	Comparer *Comparer

	// FilterPolicy is used to reduce disk reads for Get calls, and is applied
	// when tables are opened for scanning during repair.
	//
	// The default value means to use no filter.
	FilterPolicy FilterPolicy

	// Logger is the destination for progress and corruption messages.
	Logger Logger

	// Cache is the block cache shared by the table readers of every locality
	// group; each group keys its blocks under its own cache id. If nil, repair
	// creates (and releases) its own.
	Cache *cache.Cache

	// TableCache caches open tables. Repair opens each table exactly once, so
	// when it has to create its own the cache is kept small. A caller-provided
	// table cache is never released by repair.
	TableCache *TableCache

	// LGList is the sorted set of locality group ids the database was created
	// with. The default is the single group 0.
	LGList []LGID
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid non-default value was not specified. Returns the receiver for
// chaining.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	if len(o.LGList) == 0 {
		o.LGList = []LGID{0}
	} else {
		o.LGList = slices.Clone(o.LGList)
		slices.Sort(o.LGList)
		o.LGList = slices.Compact(o.LGList)
	}
	return o
}
