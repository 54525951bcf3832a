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

package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EntryName turns a qualified method name such as
// "com.example.VectorOps.vectorAdd" into a kernel symbol
// ("vectorOpsVectorAdd"). The class segment is kept when it is capitalized;
// package segments are dropped.
func EntryName(method string) string {
	parts := strings.FieldsFunc(method, func(r rune) bool { return r == '.' || r == '/' })
	if len(parts) == 0 {
		return "kernel"
	}
	if n := len(parts); n >= 2 && startsUpper(parts[n-2]) {
		parts = parts[n-2:]
	} else {
		parts = parts[n-1:]
	}

	title := cases.Title(language.English, cases.NoLower)
	var sb strings.Builder
	for i, p := range parts {
		if i == 0 {
			r, size := utf8.DecodeRuneInString(p)
			sb.WriteRune(unicode.ToLower(r))
			sb.WriteString(p[size:])
			continue
		}
		sb.WriteString(title.String(p))
	}
	name := strings.Map(func(r rune) rune {
		if r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, sb.String())
	if unicode.IsDigit(rune(name[0])) {
		name = "k_" + name
	}
	return name
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}
