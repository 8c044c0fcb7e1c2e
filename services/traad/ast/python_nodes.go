// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

// Python tree-sitter node types.
//
// Reference tree for the shapes this package and the Python engine rely on:
//
//	module
//	├── expression_statement (docstring)
//	│   └── string
//	├── import_statement
//	│   ├── dotted_name
//	│   └── aliased_import (name: dotted_name, alias: identifier)
//	├── import_from_statement
//	│   ├── module_name: dotted_name | relative_import (import_prefix, dotted_name?)
//	│   ├── name: dotted_name | aliased_import
//	│   └── wildcard_import
//	├── future_import_statement
//	├── function_definition
//	│   ├── name: identifier
//	│   ├── parameters
//	│   │   ├── identifier
//	│   │   ├── typed_parameter (identifier | splat pattern, type: type)
//	│   │   ├── default_parameter (name, value)
//	│   │   ├── typed_default_parameter (name, type, value)
//	│   │   ├── list_splat_pattern / dictionary_splat_pattern
//	│   │   └── keyword_separator / positional_separator
//	│   └── body: block
//	├── class_definition
//	│   ├── name: identifier
//	│   ├── superclasses: argument_list
//	│   └── body: block
//	├── decorated_definition
//	│   ├── decorator+
//	│   └── definition: function_definition | class_definition
//	└── expression_statement
//	    └── assignment (left, type?, right)
const (
	NodeModule                  = "module"
	NodeBlock                   = "block"
	NodeComment                 = "comment"
	NodeIdentifier              = "identifier"
	NodeAttribute               = "attribute"
	NodeCall                    = "call"
	NodeArgumentList            = "argument_list"
	NodeKeywordArgument         = "keyword_argument"
	NodeListSplat               = "list_splat"
	NodeDictionarySplat         = "dictionary_splat"
	NodeString                  = "string"
	NodeExpressionStatement     = "expression_statement"
	NodeAssignment              = "assignment"
	NodeAugmentedAssignment     = "augmented_assignment"
	NodeFunctionDefinition      = "function_definition"
	NodeClassDefinition         = "class_definition"
	NodeDecoratedDefinition     = "decorated_definition"
	NodeLambda                  = "lambda"
	NodeParameters              = "parameters"
	NodeLambdaParameters        = "lambda_parameters"
	NodeTypedParameter          = "typed_parameter"
	NodeDefaultParameter        = "default_parameter"
	NodeTypedDefaultParameter   = "typed_default_parameter"
	NodeListSplatPattern        = "list_splat_pattern"
	NodeDictionarySplatPattern  = "dictionary_splat_pattern"
	NodeKeywordSeparator        = "keyword_separator"
	NodePositionalSeparator     = "positional_separator"
	NodeImportStatement         = "import_statement"
	NodeImportFromStatement     = "import_from_statement"
	NodeFutureImportStatement   = "future_import_statement"
	NodeDottedName              = "dotted_name"
	NodeAliasedImport           = "aliased_import"
	NodeRelativeImport          = "relative_import"
	NodeImportPrefix            = "import_prefix"
	NodeWildcardImport          = "wildcard_import"
	NodeGlobalStatement         = "global_statement"
	NodeNonlocalStatement       = "nonlocal_statement"
	NodeForStatement            = "for_statement"
	NodeForInClause             = "for_in_clause"
	NodeWithItem                = "with_item"
	NodeAsPattern               = "as_pattern"
	NodeAsPatternTarget         = "as_pattern_target"
	NodeExceptClause            = "except_clause"
	NodePatternList             = "pattern_list"
	NodeTuplePattern            = "tuple_pattern"
	NodeListPattern             = "list_pattern"
	NodeParenthesizedExpression = "parenthesized_expression"
	NodeError                   = "ERROR"
)
