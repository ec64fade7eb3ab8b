// Package changes decides which (set, language) pairs need regeneration.
//
// Every card record gets a content hash over its canonical serialization; the
// hashes of one set are rolled up, together with the set identity and the
// output kinds enabled for the language, into a set-level hash. A pair whose
// roll-up matches the last committed baseline is skipped unless the run is
// forced. A missing or unreadable baseline is a cold start, never an error.
package changes
