package services

import (
	"errors"
	"path/filepath"
	"strings"
)

// EntityType identifies which kind of portal entity a file is attached
// to. The values are the portal's canonical (Spanish) table names.
type EntityType string

const (
	EntityPersonas   EntityType = "personas"
	EntityUnidades   EntityType = "unidades"
	EntityGastos     EntityType = "gastos"
	EntityDocumentos EntityType = "documentos"
	EntityReportes   EntityType = "reportes"
)

var ErrInvalidEntityType = errors.New("invalid entity type")

// ParseEntityType validates a declared entity type at the admission
// boundary. Anything outside the closed set is rejected before any byte
// is persisted.
func ParseEntityType(value string) (EntityType, error) {
	switch EntityType(strings.ToLower(strings.TrimSpace(value))) {
	case EntityPersonas:
		return EntityPersonas, nil
	case EntityUnidades:
		return EntityUnidades, nil
	case EntityGastos:
		return EntityGastos, nil
	case EntityDocumentos:
		return EntityDocumentos, nil
	case EntityReportes:
		return EntityReportes, nil
	default:
		return "", ErrInvalidEntityType
	}
}

func EntityTypes() []EntityType {
	return []EntityType{EntityPersonas, EntityUnidades, EntityGastos, EntityDocumentos, EntityReportes}
}

// Extension allow-list, partitioned by kind. Anything else is rejected
// per file, without aborting sibling files in the same batch.
var (
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"}

	documentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".csv", ".odt", ".ods"}

	archiveExtensions = []string{".zip", ".rar", ".7z", ".tar", ".gz"}
)

var allowedExtensions = buildExtensionSet()

func buildExtensionSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, group := range [][]string{imageExtensions, documentExtensions, archiveExtensions} {
		for _, ext := range group {
			set[ext] = struct{}{}
		}
	}
	return set
}

// ExtensionAllowed checks the client-supplied file name against the
// allow-list, case-insensitively.
func ExtensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := allowedExtensions[ext]
	return ok
}
