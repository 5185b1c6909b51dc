// Package atomic provides small typed wrappers over sync/atomic, the same
// shape used pervasively across the teacher's transport and stats packages
// (atomic.Int64, atomic.Bool fields instead of bare int64/bool guarded by
// ad hoc sync/atomic calls at each use site).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package atomic

import "sync/atomic"

type Bool struct{ v atomic.Bool }

func (b *Bool) Load() bool      { return b.v.Load() }
func (b *Bool) Store(val bool)  { b.v.Store(val) }
func (b *Bool) CAS(old, nw bool) bool { return b.v.CompareAndSwap(old, nw) }

type Int64 struct{ v atomic.Int64 }

func (i *Int64) Load() int64       { return i.v.Load() }
func (i *Int64) Store(val int64)   { i.v.Store(val) }
func (i *Int64) Add(delta int64) int64 { return i.v.Add(delta) }
func (i *Int64) Inc() int64        { return i.v.Add(1) }

type Int32 struct{ v atomic.Int32 }

func (i *Int32) Load() int32     { return i.v.Load() }
func (i *Int32) Store(val int32) { i.v.Store(val) }
