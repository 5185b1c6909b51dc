//go:build !debug

// Package debug provides invariant assertions that compile away to nothing
// in production builds (build without -tags debug) and panic loudly when
// built with -tags debug. The split lets hot paths (such as the query
// channel's announcement-rank check) carry their invariants in source
// without paying for them at runtime by default.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import "sync"

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}

func AssertMutexLocked(_ *sync.Mutex) {}
