// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

import "fmt"

// Access classifies how a kernel uses one of its parameters. It drives the
// host's buffer transfer direction.
type Access uint8

const (
	AccessNone Access = 0
	AccessRead Access = 1 << 0
	// AccessWrite on its own means the prior contents are never observed.
	AccessWrite     Access = 1 << 1
	AccessReadWrite        = AccessRead | AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessNone:
		return "NONE"
	case AccessRead:
		return "READ"
	case AccessWrite:
		return "WRITE"
	case AccessReadWrite:
		return "READ_WRITE"
	}
	return fmt.Sprintf("Access(%d)", uint8(a))
}

// Reads reports whether the device reads the parameter.
func (a Access) Reads() bool { return a&AccessRead != 0 }

// Writes reports whether the device writes the parameter.
func (a Access) Writes() bool { return a&AccessWrite != 0 }

func (a Access) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Access) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NONE":
		*a = AccessNone
	case "READ":
		*a = AccessRead
	case "WRITE":
		*a = AccessWrite
	case "READ_WRITE":
		*a = AccessReadWrite
	default:
		return fmt.Errorf("unknown access mode %q", b)
	}
	return nil
}
