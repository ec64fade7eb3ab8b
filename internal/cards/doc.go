// Package cards models the normalized card data handed to the pipeline: card
// records, the sets they belong to, and the explicit SetRef variant recording
// whether a record was resolved to its set or filtered as a duplicate of a
// released record.
//
// LoadSource decodes the spreadsheet export (YAML or JSON), Normalize builds a
// run-owned Catalog, and SanityCheck enumerates every data-integrity problem
// in one pass so the spreadsheet can be fixed in a single iteration.
package cards
