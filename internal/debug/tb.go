// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package debug includes debugging helpers.
//
// Assertions and logging compile down to nothing unless the debug build tag
// is set.
package debug

// TB is the subset of [testing.TB] that [WithTesting] needs. It is an
// interface so that this package does not import package testing outside of
// tests.
type TB interface {
	Log(args ...any)
}
