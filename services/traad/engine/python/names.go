// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package python

import (
	"path"
	"strings"
	"unicode"
)

// keywords are Python's reserved words.
var keywords = []string{
	"False", "None", "True", "and", "as", "assert", "async", "await",
	"break", "class", "continue", "def", "del", "elif", "else", "except",
	"finally", "for", "from", "global", "if", "import", "in", "is",
	"lambda", "nonlocal", "not", "or", "pass", "raise", "return", "try",
	"while", "with", "yield",
}

// builtinFunctions and builtinClasses are the names of the builtins module
// offered by code assist.
var builtinFunctions = []string{
	"abs", "aiter", "all", "anext", "any", "ascii", "bin", "breakpoint",
	"callable", "chr", "compile", "delattr", "dir", "divmod", "eval",
	"exec", "format", "getattr", "globals", "hasattr", "hash", "help",
	"hex", "id", "input", "isinstance", "issubclass", "iter", "len",
	"locals", "max", "min", "next", "oct", "open", "ord", "pow", "print",
	"repr", "round", "setattr", "sorted", "sum", "vars", "__import__",
}

var builtinClasses = []string{
	"ArithmeticError", "AssertionError", "AttributeError", "BaseException",
	"Exception", "ImportError", "IndexError", "KeyError", "KeyboardInterrupt",
	"LookupError", "NameError", "NotImplementedError", "OSError",
	"RuntimeError", "StopIteration", "SyntaxError", "TypeError",
	"ValueError", "ZeroDivisionError", "bool", "bytearray", "bytes",
	"classmethod", "complex", "dict", "enumerate", "filter", "float",
	"frozenset", "int", "list", "map", "memoryview", "object", "property",
	"range", "reversed", "set", "slice", "staticmethod", "str", "super",
	"tuple", "type", "zip",
}

var (
	keywordSet = toSet(keywords)
	builtinSet = toSet(append(append([]string{}, builtinFunctions...), builtinClasses...))
)

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// isIdentifier reports whether s is a valid Python identifier.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)) {
			continue
		}
		return false
	}
	return true
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isPrivate applies Python's underscore convention.
func isPrivate(name string) bool {
	return strings.HasPrefix(name, "_") && !(strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"))
}

// =============================================================================
// Module Names
// =============================================================================

// moduleName maps a project-relative .py path to its dotted module name.
//
// "pkg/__init__.py" is "pkg"; a root "__init__.py" has no name.
func moduleName(rel string) string {
	rel = strings.TrimSuffix(strings.TrimSuffix(rel, ".py"), ".pyi")
	if path.Base(rel) == "__init__" {
		rel = path.Dir(rel)
		if rel == "." {
			return ""
		}
	}
	return strings.ReplaceAll(rel, "/", ".")
}

// isPackageFile reports an __init__ module.
func isPackageFile(rel string) bool {
	base := path.Base(rel)
	return base == "__init__.py" || base == "__init__.pyi"
}

// resolveRelative returns the absolute module named by a from-import in the
// module at rel. Level 0 imports are already absolute.
func resolveRelative(rel string, level int, module string) (string, bool) {
	if level == 0 {
		return module, module != ""
	}
	pkg := moduleName(rel)
	if !isPackageFile(rel) {
		pkg = parentModule(pkg)
	}
	for i := 1; i < level; i++ {
		if pkg == "" {
			return "", false
		}
		pkg = parentModule(pkg)
	}
	switch {
	case pkg == "":
		return module, module != ""
	case module == "":
		return pkg, true
	default:
		return pkg + "." + module, true
	}
}

func parentModule(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}
