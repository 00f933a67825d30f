package store

import (
	"fmt"
	"hash/fnv"

	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// Bucket names.
var (
	bucketRecords   = []byte("records")    // recordKey -> UsageRecord JSON
	bucketIdentity  = []byte("identity")   // identityKey -> recordKey (unique index)
	bucketSessions  = []byte("by_session") // sessionID \x00 recordKey -> recordKey
	bucketProjects  = []byte("by_project") // project \x00 recordKey -> recordKey
	bucketModels    = []byte("by_model")   // model \x00 recordKey -> recordKey
	bucketDays      = []byte("by_day")     // YYYY-MM-DD \x00 recordKey -> recordKey
	bucketPositions = []byte("positions")  // file path -> byte offset
	bucketMeta      = []byte("meta")       // watermark, schema version
)

var allBuckets = [][]byte{
	bucketRecords,
	bucketIdentity,
	bucketSessions,
	bucketProjects,
	bucketModels,
	bucketDays,
	bucketPositions,
	bucketMeta,
}

// Meta keys.
var (
	metaWatermark     = []byte("watermark")
	metaSchemaVersion = []byte("schema_version")
)

// schemaVersion identifies the current bucket layout.
const schemaVersion = "1"

// indexSep separates the group value from the record key in index
// bucket keys. Session ids, projects, models and dates never contain it.
const indexSep = "\x00"

// recordKey builds the primary bucket key for a record.
//
// The zero-padded nanosecond prefix makes cursor order equal timestamp
// order; session id and a source-file hash disambiguate records sharing
// a timestamp, which also realizes the composite uniqueness constraint
// over (timestamp, sessionId, sourceFile).
func recordKey(rec *parser.UsageRecord) []byte {
	h := fnv.New32a()
	_, _ = h.Write([]byte(rec.SourceFile))
	return []byte(fmt.Sprintf("%020d|%s|%08x",
		rec.Timestamp.UnixNano(), rec.SessionID, h.Sum32()))
}

// timePrefix builds the smallest record key at or after the given
// nanosecond timestamp, for cursor seeks.
func timePrefix(unixNano int64) []byte {
	return []byte(fmt.Sprintf("%020d", unixNano))
}

// indexKey builds a secondary index key.
func indexKey(group string, recKey []byte) []byte {
	key := make([]byte, 0, len(group)+1+len(recKey))
	key = append(key, group...)
	key = append(key, indexSep...)
	key = append(key, recKey...)
	return key
}
