// Package lookml turns BigQuery schema trees into LookML field sets:
// dimensions, dimension groups and synthesized measures.
package lookml

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mozdata/lookgen/lkml"
)

// dimensionTypes maps BigQuery field types to LookML dimension types.
// Types missing from this table are emitted hidden, not rejected.
var dimensionTypes = map[string]string{
	"BIGNUMERIC": "string",
	"BOOLEAN":    "yesno",
	"BYTES":      "string",
	"DATE":       "time",
	"DATETIME":   "time",
	"FLOAT":      "number",
	"INTEGER":    "number",
	"NUMERIC":    "number",
	"STRING":     "string",
	"TIME":       "time",
	"TIMESTAMP":  "time",
}

// hiddenPaths are always forced hidden: exposing high-cardinality
// identifiers as free-form dimensions is never useful.
var hiddenPaths = map[string]bool{
	"document_id":           true,
	"client_id":             true,
	"client_info.client_id": true,
	"context_id":            true,
	"additional_properties": true,
}

// mapLayers annotates geography fields for map visualizations.
var mapLayers = map[string]string{
	"country":              "countries",
	"metadata.geo.country": "countries",
}

// clientIDCandidates is the single source of truth for the client
// identifier convention. Some tables purposely carry none.
var clientIDCandidates = map[string]bool{
	"client_id":              true,
	"client_info__client_id": true,
	"context_id":             true,
}

const documentIDField = "document_id"

const defaultSuggestPersistFor = "24 hours"

var timeSuffix = regexp.MustCompile(`_(date|time(stamp)?)$`)

var initialisms = regexp.MustCompile(`(?i)\b(CPU|DB|DNS|DNT|DOM|GC|GPU|HTTP|ID|IO|IP|ISP|JWE|LB|OS|SDK|SERP|SSL|TLS|UI|URI|URL|UTM|UUID)\b`)

// SlugToTitle converts snake_case to Title Case, uppercasing common
// initialisms ("os_version" becomes "OS Version").
func SlugToTitle(slug string) string {
	title := strings.Title(strings.ReplaceAll(slug, "_", " "))
	return initialisms.ReplaceAllStringFunc(title, strings.ToUpper)
}

var filterSpecials = regexp.MustCompile(`((?:^-)|["_%,^])`)

// EscapeFilterExpr escapes Looker filter-expression special characters.
func EscapeFilterExpr(expr string) string {
	return filterSpecials.ReplaceAllString(expr, "^$1")
}

// ClientIDField returns the flattened name of the client identifier
// dimension, or "" when the table carries none. Tables matched by more
// than one candidate name are configuration defects.
func ClientIDField(dims []lkml.Dimension, table string) (string, error) {
	var found []string
	for _, d := range dims {
		if clientIDCandidates[d.Name] {
			found = append(found, d.Name)
		}
	}
	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("duplicate client id dimensions %v in %q", found, table)
	}
}

// DocumentIDField returns the document identifier dimension name, or "".
func DocumentIDField(dims []lkml.Dimension) string {
	for _, d := range dims {
		if d.Name == documentIDField {
			return d.Name
		}
	}
	return ""
}
