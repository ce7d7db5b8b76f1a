package document

import (
	"fmt"
	"strings"
)

// Field names a document field a stage reads or writes.
type Field string

const (
	FieldText         Field = "text"
	FieldTokens       Field = "tokens"
	FieldSentences    Field = "sentences"
	FieldSegments     Field = "segments"
	FieldGlossary     Field = "glossary"
	FieldEntities     Field = "entities"
	FieldDocumentType Field = "document_type"
	FieldLanguage     Field = "language"
)

var knownFields = map[Field]bool{
	FieldText:         true,
	FieldTokens:       true,
	FieldSentences:    true,
	FieldSegments:     true,
	FieldGlossary:     true,
	FieldEntities:     true,
	FieldDocumentType: true,
	FieldLanguage:     true,
}

// ScalarFields are the fields a classifier may write.
var ScalarFields = []Field{FieldDocumentType, FieldLanguage}

// ParseField resolves a field name. Unknown names are an error.
func ParseField(name string) (Field, error) {
	field := Field(strings.ToLower(strings.TrimSpace(name)))
	if !knownFields[field] {
		return "", fmt.Errorf("unknown document field %q", name)
	}
	return field, nil
}

// IsScalar reports whether field is a classifier-writable attribute.
func (field Field) IsScalar() bool {
	for _, scalar := range ScalarFields {
		if field == scalar {
			return true
		}
	}
	return false
}

// SetScalar writes value to a scalar field.
func (doc *Document) SetScalar(field Field, value string) error {
	switch field {
	case FieldDocumentType:
		doc.DocumentType = value
	case FieldLanguage:
		doc.Language = value
	default:
		return fmt.Errorf("field %q is not a scalar attribute", field)
	}
	return nil
}

// Scalar reads a scalar field.
func (doc *Document) Scalar(field Field) (string, bool) {
	switch field {
	case FieldDocumentType:
		return doc.DocumentType, true
	case FieldLanguage:
		return doc.Language, true
	}
	return "", false
}
