// Package persistence saves and restores objects through a pluggable
// serialization format and storage mechanism.
//
// A Persistence pairs a SerializationFormat (JSON, YAML, TOML) with a
// Mechanism (null, local file, AWS S3). How and where objects are stored is
// an implementation detail of the mechanism; the format decides the bytes
// and the file extension affixed to references.
package persistence
