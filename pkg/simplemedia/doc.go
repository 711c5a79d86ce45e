// Package simplemedia provides a reusable engine for storing uploaded media
// and deriving resized and cropped variants from it.
//
// Originals are committed into a content-sharded directory tree: the path is
// derived from the sha1 of the bytes and the 30-day bucket of the upload
// time, and the filename is randomized. Hashing only buckets placement;
// identical uploads are stored twice.
//
// Behavior per media type is driven by a TypeProfile looked up from a
// Registry by key. The Service validates an upload against its profile,
// stores the original, persists an Asset record and, for photos, derives
// the configured variants (plain sizes, square crop, custom crop). Video
// uploads can carry a cover image extracted from the first second.
//
// Assets move through use, hide (files renamed with a "_<unix>." tombstone
// prefix) and garbage collection of assets never marked in use.
//
// Repository, file store, image processor and cache implementations live in
// subpackages.
package simplemedia
