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

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is matched by every UnsupportedError.
	ErrUnsupported = errors.New("unsupported construct")
	// ErrInvariant is matched by every InvariantError.
	ErrInvariant = errors.New("graph invariant violated")
)

// UnsupportedError reports a construct with no encoding on the selected
// backend, or a pattern a pass refuses to handle. It aborts the compilation
// that produced it.
type UnsupportedError struct {
	Node    NodeID
	Kind    Kind
	Pass    string
	Backend string
	Reason  string
}

func (e *UnsupportedError) Error() string {
	where := e.Pass
	if e.Backend != "" {
		if where != "" {
			where += "/"
		}
		where += e.Backend
	}
	if where == "" {
		return fmt.Sprintf("%s: node %d (%s): %s", ErrUnsupported, e.Node, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: node %d (%s): %s", where, ErrUnsupported, e.Node, e.Kind, e.Reason)
}

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// Unsupported builds an UnsupportedError for node n.
func Unsupported(n *Node, pass, backend, format string, args ...any) *UnsupportedError {
	e := &UnsupportedError{Pass: pass, Backend: backend, Reason: fmt.Sprintf(format, args...)}
	if n != nil {
		e.Node, e.Kind = n.ID(), n.Kind
	}
	return e
}

// InvariantError reports an internal defect: a dangling edge, a node used
// after removal, a dimension collision. It is raised with panic by the graph
// model and recovered at pass boundaries by the compiler.
type InvariantError struct {
	Node NodeID
	Pass string
	Msg  string
}

func (e *InvariantError) Error() string {
	if e.Pass != "" {
		return fmt.Sprintf("%s: %s: node %d: %s", e.Pass, ErrInvariant, e.Node, e.Msg)
	}
	return fmt.Sprintf("%s: node %d: %s", ErrInvariant, e.Node, e.Msg)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

func invariant(id NodeID, format string, args ...any) {
	panic(&InvariantError{Node: id, Msg: fmt.Sprintf(format, args...)})
}

// Recover converts a recovered InvariantError panic into an error tagged with
// pass. Other panic values are re-raised. Use it as
//
//	defer graph.Recover("reduce", &err)
func Recover(pass string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	ie, ok := r.(*InvariantError)
	if !ok {
		panic(r)
	}
	if ie.Pass == "" {
		ie.Pass = pass
	}
	*errp = ie
}
