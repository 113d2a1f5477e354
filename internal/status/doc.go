// Package status keeps a short-lived cache of incident announcements and
// correlates them with FAQ questions by embedding similarity.
//
// Records start Unembedded and become Embedded the first time a search
// needs their vector. EnsureEmbedded performs that transition without
// touching the input, and Cache.Search publishes the results with a single
// copy-on-write swap, so concurrent readers never see a half-embedded
// collection.
package status
